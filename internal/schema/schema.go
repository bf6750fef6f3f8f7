package schema

// EventType defines the category of a push channel message.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventExecutionReport
	EventAccountPosition
	EventBalanceUpdate
	EventListStatus
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventExecutionReport:
		return "executionReport"
	case EventAccountPosition:
		return "outboundAccountPosition"
	case EventBalanceUpdate:
		return "balanceUpdate"
	case EventListStatus:
		return "listStatus"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseEventType maps the wire event name to an EventType.
func ParseEventType(name string) EventType {
	switch name {
	case "executionReport":
		return EventExecutionReport
	case "outboundAccountPosition":
		return EventAccountPosition
	case "balanceUpdate":
		return EventBalanceUpdate
	case "listStatus":
		return EventListStatus
	case "error":
		return EventError
	default:
		return EventUnknown
	}
}
