package model

// Author identifies the sender of a message or event. It is an immutable
// value; IsMe is resolved against the adapter's configured bot identity at
// parse time and is the single signal used to suppress bot feedback loops.
type Author struct {
	UserID   string
	UserName string
	FullName string
	IsBot    bool
	IsMe     bool
}
