package notification

import (
	"encoding/json"
	"time"
)

// Type identifies the state transition an event describes.
type Type string

const (
	MemberJoined Type = "member_joined"
	MemberLeft   Type = "member_left"
	GroupClosed  Type = "group_closed"
)

// Event representa uma mudança de estado registrada junto com a transação que a gerou.
// Eventos são apenas anexados; nunca são atualizados ou removidos.
type Event struct {
	ID        string          `json:"id"`
	Seq       int64           `json:"seq"`
	GroupID   string          `json:"groupId"`
	Type      Type            `json:"eventType"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// MemberJoinedData traz os dados do participante que entrou.
type MemberJoinedData struct {
	MembershipID string    `json:"membershipId"`
	MemberName   string    `json:"memberName"`
	MemberEmail  string    `json:"memberEmail"`
	UserID       string    `json:"userId,omitempty"`
	Anonymous    bool      `json:"anonymous"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// MemberLeftData traz os dados do participante que saiu ou foi removido.
type MemberLeftData struct {
	MembershipID   string    `json:"membershipId"`
	MemberName     string    `json:"memberName"`
	MemberEmail    string    `json:"memberEmail"`
	RemovedByOwner bool      `json:"removedByOwner"`
	RemovedBy      string    `json:"removedBy,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	DepartedAt     time.Time `json:"departedAt"`
}

// GroupClosedData descreve o fechamento do grupo.
type GroupClosedData struct {
	ClosedBy  string    `json:"closedBy"`
	GroupName string    `json:"groupName"`
	ClosedAt  time.Time `json:"closedAt"`
}

// Reason values recorded on member_left events.
const (
	ReasonLeft           = "left"
	ReasonRemoved        = "removed"
	ReasonAccountDeleted = "account_deleted"
)
