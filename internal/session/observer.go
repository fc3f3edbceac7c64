package session

// Observer receives notifications from a running send. OnSnapshot is called
// after every state change, OnFinished exactly once per send, and
// OnConversations whenever the conversation list was refreshed.
//
// Calls arrive on the goroutine running the send.
type Observer interface {
	OnSnapshot(Snapshot)
	OnFinished(Outcome)
	OnConversations([]Conversation)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Snapshot      func(Snapshot)
	Finished      func(Outcome)
	Conversations func([]Conversation)
}

func (o ObserverFuncs) OnSnapshot(s Snapshot) {
	if o.Snapshot != nil {
		o.Snapshot(s)
	}
}

func (o ObserverFuncs) OnFinished(out Outcome) {
	if o.Finished != nil {
		o.Finished(out)
	}
}

func (o ObserverFuncs) OnConversations(list []Conversation) {
	if o.Conversations != nil {
		o.Conversations(list)
	}
}

var _ Observer = ObserverFuncs{}
