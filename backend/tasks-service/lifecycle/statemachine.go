package lifecycle

import "trello-project/backend/tasks-service/models"

// Kind names a legal edge of the status graph.
type Kind string

const (
	KindAccept   Kind = "accept"
	KindDecline  Kind = "decline"
	KindSubmit   Kind = "submit"
	KindApprove  Kind = "approve"
	KindReturn   Kind = "return"
	KindResume   Kind = "resume"
	KindResubmit Kind = "resubmit"
)

type edge struct {
	from, to models.TaskStatus
}

var graph = map[edge]Kind{
	{models.StatusNotAssigned, models.StatusInProgress}:     KindAccept,
	{models.StatusNotAssigned, models.StatusReturned}:       KindDecline,
	{models.StatusInProgress, models.StatusWaitingApproval}: KindSubmit,
	{models.StatusWaitingApproval, models.StatusCompleted}:  KindApprove,
	{models.StatusWaitingApproval, models.StatusReturned}:   KindReturn,
	{models.StatusReturned, models.StatusInProgress}:        KindResume,
	{models.StatusReturned, models.StatusWaitingApproval}:   KindResubmit,
}

// InitialStatus is the status of a freshly created task.
const InitialStatus = models.StatusNotAssigned

// Edge returns the kind of the from -> to edge, if it exists.
func Edge(from, to models.TaskStatus) (Kind, bool) {
	k, ok := graph[edge{from, to}]
	return k, ok
}

// Next lists the statuses reachable from "from" in one step, in board order.
func Next(from models.TaskStatus) []models.TaskStatus {
	var out []models.TaskStatus
	for _, to := range models.Statuses {
		if _, ok := graph[edge{from, to}]; ok {
			out = append(out, to)
		}
	}
	return out
}

// IsTerminal reports whether no edge leaves s.
func IsTerminal(s models.TaskStatus) bool {
	return s == models.StatusCompleted
}

// RequiresReason reports whether the edge needs a non-empty reason string.
func RequiresReason(from, to models.TaskStatus) bool {
	k, ok := Edge(from, to)
	return ok && k == KindReturn
}
