package protocol

import (
	"encoding/json"
	"strings"
)

// Command is a plaintext dashboard-to-device command.
type Command string

const (
	CmdTest        Command = "test"
	CmdStartRecord Command = "start_record"
	CmdEndRecord   Command = "end_record"
	CmdGetRecord   Command = "get_record"
)

// UnknownCommandMessage is the error text for unrecognised commands.
const UnknownCommandMessage = "unknown command"

// ParseCommand maps frame text to a known command.
func ParseCommand(text string) (Command, bool) {
	switch c := Command(strings.TrimSpace(text)); c {
	case CmdTest, CmdStartRecord, CmdEndRecord, CmdGetRecord:
		return c, true
	default:
		return "", false
	}
}

type temperatureJSON struct {
	Temperature float64 `json:"temperature"`
}

type statusJSON struct {
	Status string `json:"status"`
}

type recordingJSON struct {
	Recording string `json:"recording"`
}

type dataJSON struct {
	Data []float64 `json:"data"`
}

type errorJSON struct {
	Error string `json:"error"`
}

// TemperatureFrame encodes a periodic reading.
func TemperatureFrame(v float64) []byte {
	data, _ := json.Marshal(temperatureJSON{Temperature: v})
	return data
}

// StatusOK encodes the reply to CmdTest.
func StatusOK() []byte {
	data, _ := json.Marshal(statusJSON{Status: "ok"})
	return data
}

// RecordingFrame encodes the reply to CmdStartRecord / CmdEndRecord.
func RecordingFrame(started bool) []byte {
	s := RecordingStopped
	if started {
		s = RecordingStarted
	}
	data, _ := json.Marshal(recordingJSON{Recording: s})
	return data
}

// DataFrame encodes the reply to CmdGetRecord. A nil slice encodes as [].
func DataFrame(values []float64) []byte {
	if values == nil {
		values = []float64{}
	}
	data, _ := json.Marshal(dataJSON{Data: values})
	return data
}

// UnknownCommand encodes the reply to unrecognised command text.
func UnknownCommand() []byte {
	data, _ := json.Marshal(errorJSON{Error: UnknownCommandMessage})
	return data
}
