package hostel

type hostelPayload struct {
	HostelID string `json:"hostel_id"`
}

type dashboardRequest struct {
	HostelID *string `json:"hostel_id"`
}

type subscribeRequest struct {
	Types []string `json:"types"`
}

type broadcastRequest struct {
	Message string `json:"message"`
	Target  string `json:"target"`
}

// JoinHostelRoom subscribes to the updates of one hostel. The room is joined
// again whenever the connection comes back after a drop.
func (u *Updates) JoinHostelRoom(hostelID string) error {
	u.mu.Lock()
	if !u.joinedLocked(hostelID) {
		u.rooms = append(u.rooms, hostelID)
	}
	u.mu.Unlock()

	return u.client.Send(EventJoinHostelRoom, hostelPayload{HostelID: hostelID})
}

func (u *Updates) joinedLocked(hostelID string) bool {
	for _, id := range u.rooms {
		if id == hostelID {
			return true
		}
	}
	return false
}

func (u *Updates) LeaveHostelRoom(hostelID string) error {
	u.mu.Lock()
	for i, id := range u.rooms {
		if id == hostelID {
			u.rooms = append(u.rooms[:i:i], u.rooms[i+1:]...)
			break
		}
	}
	u.mu.Unlock()

	return u.client.Send(EventLeaveHostelRoom, hostelPayload{HostelID: hostelID})
}

// RequestDashboardUpdate asks for dashboard statistics. An empty hostelID
// requests the statistics of the user's own scope.
func (u *Updates) RequestDashboardUpdate(hostelID string) error {
	req := dashboardRequest{}
	if hostelID != "" {
		req.HostelID = &hostelID
	}
	return u.client.Send(EventRequestDashboardUpdate, req)
}

func (u *Updates) SubscribeToNotifications(types ...string) error {
	if types == nil {
		types = []string{}
	}
	return u.client.Send(EventSubscribeToNotifications, subscribeRequest{Types: types})
}

// BroadcastMessage sends message to target: "all", "owners", "managers" or a
// hostel room. An empty target means "all".
func (u *Updates) BroadcastMessage(message, target string) error {
	if target == "" {
		target = "all"
	}
	return u.client.Send(EventBroadcastMessage, broadcastRequest{Message: message, Target: target})
}

func (u *Updates) GetOnlineUsers() error {
	return u.client.Send(EventGetOnlineUsers, nil)
}
