package model

// Card is the abstract rich-message tree handed to a platform renderer.
// Rendering into block arrays / adaptive cards / inline keyboards is the
// renderer collaborator's job; the gateway only carries the tree.
type Card struct {
	Title   string
	Text    string
	Buttons []Button
}

// Button is an interactive element on a Card
type Button struct {
	ActionID string
	Label    string
	Value    string
}

// Modal is the abstract form tree for OpenModal
type Modal struct {
	CallbackID string
	Title      string
	SubmitText string
	Inputs     []ModalInput
}

// ModalInput is a single form field in a Modal
type ModalInput struct {
	Name        string
	Label       string
	Placeholder string
	Multiline   bool
}
