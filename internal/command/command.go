// ABOUTME: Command value type for the master/agent control protocol.
// ABOUTME: Closed set of kinds (Update, Ping, Identify, Custom) with constructors and accessors.

package command

import "fmt"

// PongData is the Custom payload an agent sends to acknowledge a Ping.
const PongData = "PONG"

// Kind identifies which variant a Command holds.
type Kind uint8

const (
	KindUpdate Kind = iota + 1
	KindPing
	KindIdentify
	KindCustom
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUpdate:
		return "update"
	case KindPing:
		return "ping"
	case KindIdentify:
		return "identify"
	case KindCustom:
		return "custom"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// parseKind maps a wire name back to a Kind. Returns false for unknown names.
func parseKind(s string) (Kind, bool) {
	switch s {
	case "update":
		return KindUpdate, true
	case "ping":
		return KindPing, true
	case "identify":
		return KindIdentify, true
	case "custom":
		return KindCustom, true
	default:
		return 0, false
	}
}

// Command is one control message. The zero value is not a valid command;
// build commands with Update, Ping, Identify, Custom, or Pong.
// Commands are comparable with ==.
type Command struct {
	kind     Kind
	hostname string
	data     string
}

// Update returns the "a change occurred" broadcast command.
func Update() Command { return Command{kind: KindUpdate} }

// Ping returns the liveness check command.
func Ping() Command { return Command{kind: KindPing} }

// Identify returns the command an agent sends to announce its hostname.
func Identify(hostname string) Command {
	return Command{kind: KindIdentify, hostname: hostname}
}

// Custom returns a command carrying an arbitrary payload.
func Custom(data string) Command {
	return Command{kind: KindCustom, data: data}
}

// Pong returns the heartbeat acknowledgement, Custom{"PONG"}.
func Pong() Command { return Custom(PongData) }

// Kind reports the variant.
func (c Command) Kind() Kind { return c.kind }

// Hostname returns the announced hostname for Identify commands, "" otherwise.
func (c Command) Hostname() string { return c.hostname }

// Data returns the payload for Custom commands, "" otherwise.
func (c Command) Data() string { return c.data }

// IsPong reports whether c is the heartbeat acknowledgement.
func (c Command) IsPong() bool {
	return c.kind == KindCustom && c.data == PongData
}

// Valid reports whether c is one of the four known variants.
func (c Command) Valid() bool {
	return c.kind >= KindUpdate && c.kind <= KindCustom
}

func (c Command) String() string {
	switch c.kind {
	case KindIdentify:
		return fmt.Sprintf("Identify{hostname: %q}", c.hostname)
	case KindCustom:
		return fmt.Sprintf("Custom{data: %q}", c.data)
	case KindUpdate:
		return "Update"
	case KindPing:
		return "Ping"
	default:
		return "Invalid"
	}
}
