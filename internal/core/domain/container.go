package domain

// ContainerHandle identifies a container that was created and started by a
// LifecycleRun. Only a successful launch produces one.
type ContainerHandle struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ShortID returns the 12 character form of the container ID.
func (h ContainerHandle) ShortID() string {
	if len(h.ID) > 12 {
		return h.ID[:12]
	}
	return h.ID
}
