package lifecycle

// Publisher receives post-commit notifications. Delivery is best effort;
// observers must re-fetch authoritative state.
type Publisher interface {
	Publish(event string, payload any)
}

// Event names.
const (
	EventDeviceCreated      = "device:created"
	EventDeviceStatus       = "device:status"
	EventAssignmentCreated  = "assignment:created"
	EventAssignmentApproved = "assignment:approved"
	EventAssignmentReturned = "assignment:returned"
	EventDashboardUpdate    = "dashboard:update"
)

// DeviceStatusPayload is published with EventDeviceStatus.
type DeviceStatusPayload struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type event struct {
	name    string
	payload any
}

// outbox collects events during a transaction so they are published only
// after it commits.
type outbox []event

func (o *outbox) add(name string, payload any) {
	*o = append(*o, event{name: name, payload: payload})
}

type discard struct{}

func (discard) Publish(string, any) {}
