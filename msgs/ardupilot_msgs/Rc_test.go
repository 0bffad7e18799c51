package ardupilot_msgs

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/edwinhayes/rcprobe/msgs/std_msgs"
	"github.com/edwinhayes/rcprobe/ros"
)

func TestRcSerialize(t *testing.T) {
	msg := Rc{
		Header: std_msgs.Header{
			Seq:     7,
			Stamp:   ros.NewTime(1, 2),
			FrameID: "base",
		},
		IsConnected:     true,
		ReceiverRssi:    87,
		Channels:        []int16{1500, -1},
		ActiveOverrides: []bool{false, true},
	}
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		t.Fatal(err)
	}
	expected := []byte{
		7, 0, 0, 0, // seq
		1, 0, 0, 0, 2, 0, 0, 0, // stamp
		4, 0, 0, 0, 'b', 'a', 's', 'e', // frame_id
		1,  // is_connected
		87, // receiver_rssi
		2, 0, 0, 0, 0xdc, 0x05, 0xff, 0xff, // channels
		2, 0, 0, 0, 0, 1, // active_overrides
	}
	if !bytes.Equal(buf.Bytes(), expected) {
		t.Errorf("serialized\n%v\nexpected\n%v", buf.Bytes(), expected)
	}

	decoded := MsgRc.NewMessage().(*Rc)
	if err := decoded.Deserialize(bytes.NewReader(expected)); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(*decoded, msg) {
		t.Errorf("decoded %+v", *decoded)
	}
}

func TestRcDeserializeTruncated(t *testing.T) {
	var buf bytes.Buffer
	msg := Rc{Channels: []int16{1, 2, 3}}
	if err := msg.Serialize(&buf); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	decoded := new(Rc)
	if err := decoded.Deserialize(bytes.NewReader(data[:len(data)-3])); err == nil {
		t.Error("expected error on truncated input")
	}
}

func TestRcType(t *testing.T) {
	msg := new(Rc)
	if msg.Type().Name() != "ardupilot_msgs/Rc" {
		t.Error(msg.Type().Name())
	}
	if msg.Type().MD5Sum() != "1d6439e5320ac511312c0472c4f58921" {
		t.Error(msg.Type().MD5Sum())
	}
}
