// Automatically generated from the message definition "ardupilot_msgs/Rc.msg"
package ardupilot_msgs

import (
	"bytes"
	"encoding/binary"

	"github.com/edwinhayes/rcprobe/msgs/std_msgs"
	"github.com/edwinhayes/rcprobe/ros"
)

type _MsgRc struct {
	text   string
	name   string
	md5sum string
}

func (t *_MsgRc) Text() string {
	return t.text
}

func (t *_MsgRc) Name() string {
	return t.name
}

func (t *_MsgRc) MD5Sum() string {
	return t.md5sum
}

func (t *_MsgRc) NewMessage() ros.Message {
	m := new(Rc)
	m.Header = std_msgs.Header{}
	m.IsConnected = false
	m.ReceiverRssi = 0
	m.Channels = []int16{}
	m.ActiveOverrides = []bool{}
	return m
}

var (
	MsgRc = &_MsgRc{
		`# This message provides information about the RC inputs.
std_msgs/Header header

# returns true if radio is connected
bool is_connected

# returns [0, 100] for receiver RSSI
uint8 receiver_rssi

# channels values
int16[] channels

# returns true if the channel at the index is overridden
bool[] active_overrides

================================================================================
MSG: std_msgs/Header
# Standard metadata for higher-level stamped data types.
uint32 seq
time stamp
string frame_id
`,
		"ardupilot_msgs/Rc",
		"1d6439e5320ac511312c0472c4f58921",
	}
)

type Rc struct {
	Header          std_msgs.Header `rosmsg:"header:Header"`
	IsConnected     bool            `rosmsg:"is_connected:bool"`
	ReceiverRssi    uint8           `rosmsg:"receiver_rssi:uint8"`
	Channels        []int16         `rosmsg:"channels:int16[]"`
	ActiveOverrides []bool          `rosmsg:"active_overrides:bool[]"`
}

func (m *Rc) Type() ros.MessageType {
	return MsgRc
}

func (m *Rc) Serialize(buf *bytes.Buffer) error {
	var err error = nil
	if err = m.Header.Serialize(buf); err != nil {
		return err
	}
	binary.Write(buf, binary.LittleEndian, m.IsConnected)
	binary.Write(buf, binary.LittleEndian, m.ReceiverRssi)
	binary.Write(buf, binary.LittleEndian, uint32(len(m.Channels)))
	for _, e := range m.Channels {
		binary.Write(buf, binary.LittleEndian, e)
	}
	binary.Write(buf, binary.LittleEndian, uint32(len(m.ActiveOverrides)))
	for _, e := range m.ActiveOverrides {
		binary.Write(buf, binary.LittleEndian, e)
	}
	return err
}

func (m *Rc) Deserialize(buf *bytes.Reader) error {
	var err error = nil
	if err = m.Header.Deserialize(buf); err != nil {
		return err
	}
	if err = binary.Read(buf, binary.LittleEndian, &m.IsConnected); err != nil {
		return err
	}
	if err = binary.Read(buf, binary.LittleEndian, &m.ReceiverRssi); err != nil {
		return err
	}
	{
		var size uint32
		if err = binary.Read(buf, binary.LittleEndian, &size); err != nil {
			return err
		}
		m.Channels = make([]int16, int(size))
		for i := 0; i < int(size); i++ {
			if err = binary.Read(buf, binary.LittleEndian, &m.Channels[i]); err != nil {
				return err
			}
		}
	}
	{
		var size uint32
		if err = binary.Read(buf, binary.LittleEndian, &size); err != nil {
			return err
		}
		m.ActiveOverrides = make([]bool, int(size))
		for i := 0; i < int(size); i++ {
			if err = binary.Read(buf, binary.LittleEndian, &m.ActiveOverrides[i]); err != nil {
				return err
			}
		}
	}
	return err
}
