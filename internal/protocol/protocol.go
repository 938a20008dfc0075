package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello     = "HELLO"
	TypeWelcome   = "WELCOME"
	TypeCmd       = "CMD"
	TypeCmdResult = "CMD_RESULT"
	TypeFrame     = "FRAME"
	TypeDelivery  = "DELIVERY"
)

// Command ops carried by CMD.
const (
	OpPlaceBelt      = "PLACE_BELT"
	OpPlaceExtractor = "PLACE_EXTRACTOR"
	OpPlaceOperator  = "PLACE_OPERATOR"
	OpPlaceConsumer  = "PLACE_CONSUMER"
	OpRemove         = "REMOVE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
