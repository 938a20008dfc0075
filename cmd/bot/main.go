package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"beltline.ai/internal/protocol"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name       = flag.String("name", "bot", "client name")
		x          = flag.Int("x", 0, "x of the demo line origin")
		y          = flag.Int("y", 0, "y of the demo line origin")
		a          = flag.Int64("a", 3, "value emitted by the left extractor")
		b          = flag.Int64("b", 4, "value emitted by the right extractor")
		op         = flag.String("op", "ADD", "operator kind (ADD, SUBTRACT, MULTIPLY, DIVIDE)")
		deliveries = flag.Int("deliveries", 10, "exit after this many deliveries (0 = run until interrupted)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Capabilities: protocol.HelloCapabilities{
			FrameEvery: 0,
			MaxQueue:   64,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	got := 0
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s world=%s tick=%d tick_rate=%d", w.SessionID, w.WorldID, w.Tick, w.WorldParams.TickRateHz)
			for _, cmd := range demoLine([2]int{*x, *y}, *a, *b, *op) {
				if err := conn.WriteJSON(cmd); err != nil {
					logger.Fatalf("send CMD: %v", err)
				}
			}

		case protocol.TypeCmdResult:
			var res protocol.CmdResultMsg
			if err := json.Unmarshal(msg, &res); err != nil {
				continue
			}
			if !res.OK {
				logger.Printf("CMD %s rejected: %s %s", res.CmdID, res.Code, res.Message)
			}

		case protocol.TypeDelivery:
			var d protocol.DeliveryMsg
			if err := json.Unmarshal(msg, &d); err != nil {
				continue
			}
			got++
			logger.Printf("DELIVERY tick=%d pos=%v value=%d", d.Tick, d.Pos, d.Value)
			if *deliveries > 0 && got >= *deliveries {
				return
			}
		}
	}
}

// demoLine lays out two extractors feeding an operator whose output runs
// down two belts into a consumer. o is the operator origin.
//
//	Ea . Eb
//	 v . v
//	 A O B
//	   v
//	   v
//	   C
func demoLine(o [2]int, a, b int64, op string) []protocol.CmdMsg {
	at := func(dx, dy int) [2]int { return [2]int{o[0] + dx, o[1] + dy} }
	n := 0
	cmd := func(c protocol.CmdMsg) protocol.CmdMsg {
		n++
		c.Type = protocol.TypeCmd
		c.ProtocolVersion = protocol.Version
		c.CmdID = fmt.Sprintf("demo_%d", n)
		return c
	}
	return []protocol.CmdMsg{
		cmd(protocol.CmdMsg{Op: protocol.OpPlaceOperator, Pos: o, Kind: op, Orient: "HORIZONTAL"}),
		cmd(protocol.CmdMsg{Op: protocol.OpPlaceExtractor, Pos: at(-1, -2), Emit: &a}),
		cmd(protocol.CmdMsg{Op: protocol.OpPlaceBelt, Pos: at(-1, -1), Dir: "DOWN"}),
		cmd(protocol.CmdMsg{Op: protocol.OpPlaceExtractor, Pos: at(1, -2), Emit: &b}),
		cmd(protocol.CmdMsg{Op: protocol.OpPlaceBelt, Pos: at(1, -1), Dir: "DOWN"}),
		cmd(protocol.CmdMsg{Op: protocol.OpPlaceBelt, Pos: at(0, 1), Dir: "DOWN"}),
		cmd(protocol.CmdMsg{Op: protocol.OpPlaceBelt, Pos: at(0, 2), Dir: "DOWN"}),
		cmd(protocol.CmdMsg{Op: protocol.OpPlaceConsumer, Pos: at(0, 3)}),
	}
}
