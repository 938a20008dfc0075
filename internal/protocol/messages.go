package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	// Frames are sent every FrameEvery ticks; 0 disables frames for this session.
	FrameEvery int `json:"frame_every,omitempty"`
	MaxQueue   int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz          int     `json:"tick_rate_hz"`
	ExtractIntervalSec  float64 `json:"extract_interval_sec"`
	OperatorIntervalSec float64 `json:"operator_interval_sec"`
	BeltTilesPerSec     float64 `json:"belt_tiles_per_sec"`
	MaxCatchUp          int     `json:"max_catch_up"`
}

// CMD (client -> server). Fields beyond Op and Pos depend on the op.
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CmdID           string `json:"cmd_id"`
	Op              string `json:"op"`
	Pos             [2]int `json:"pos"`

	Dir    string `json:"dir,omitempty"`    // PLACE_BELT
	Emit   *int64 `json:"emit,omitempty"`   // PLACE_EXTRACTOR
	Kind   string `json:"kind,omitempty"`   // PLACE_OPERATOR: ADD|SUBTRACT|MULTIPLY|DIVIDE
	Orient string `json:"orient,omitempty"` // PLACE_OPERATOR: HORIZONTAL|VERTICAL
}

// CMD_RESULT (server -> client)
type CmdResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CmdID           string `json:"cmd_id"`
	Tick            uint64 `json:"tick"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// FRAME (server -> client): full grid view after a tick.
type FrameMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	WorldID         string     `json:"world_id"`
	Tick            uint64     `json:"tick"`
	Digest          string     `json:"digest"`
	Tiles           []TileView `json:"tiles"`
	Stats           FrameStats `json:"stats"`
}

type TileView struct {
	Pos  [2]int `json:"pos"`
	Kind string `json:"kind"`

	Dir      string  `json:"dir,omitempty"`
	Progress float64 `json:"progress,omitempty"`
	Dest     *[2]int `json:"dest,omitempty"`

	Emit *int64 `json:"emit,omitempty"`

	Role   string  `json:"role,omitempty"`
	Op     string  `json:"op,omitempty"`
	Orient string  `json:"orient,omitempty"`
	Origin *[2]int `json:"origin,omitempty"`

	Token *int64 `json:"token,omitempty"`
}

type FrameStats struct {
	Tokens         int    `json:"tokens"`
	Emitted        uint64 `json:"emitted"`
	Combined       uint64 `json:"combined"`
	Delivered      uint64 `json:"delivered"`
	DeliveredValue int64  `json:"delivered_value"`
}

// DELIVERY (server -> client): one token consumed by a consumer.
type DeliveryMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	WorldID         string `json:"world_id"`
	Tick            uint64 `json:"tick"`
	Pos             [2]int `json:"pos"`
	Value           int64  `json:"value"`
}
