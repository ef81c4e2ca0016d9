package config

// SetPath sets the workspace config path directly (for tests)
func (w *Workspaces) SetPath(path string) {
	w.path = path
}
