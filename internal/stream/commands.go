package stream

import "github.com/danmuck/sockwrap/internal/protocol/value"

// Command raw values shared by Client and Producer.
const (
	CmdCameraSendImage int64 = 1
	CmdSetResolution   int64 = 2
	CmdSendLog         int64 = 3
)

// Commands is the enumeration a Producer resolves incoming requests against.
var Commands = value.NewEnumType("Commands", map[int64]string{
	CmdCameraSendImage: "CAMERA_SEND_IMAGE",
	CmdSetResolution:   "SET_RESOLUTION",
	CmdSendLog:         "SEND_LOG",
})

var (
	CameraSendImage = Commands.MustMember(CmdCameraSendImage)
	SetResolution   = Commands.MustMember(CmdSetResolution)
	SendLog         = Commands.MustMember(CmdSendLog)
)
