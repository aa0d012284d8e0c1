package fever

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// markAction is what the client wants done to the targeted items
type markAction string

const (
	actionRead    markAction = "read"
	actionUnread  markAction = "unread"
	actionSaved   markAction = "saved"
	actionUnsaved markAction = "unsaved"
)

// markScope is the tagged target of a mark operation. The `before`
// cutoff only exists on the feed and group variants; an explicit item
// id list is always affected in full.
type markScope interface {
	isMarkScope()
}

type itemScope struct {
	IDs []int64
}

type feedScope struct {
	ID     int64
	Before int64 // 0 means no cutoff
}

type groupScope struct {
	ID     int64
	Before int64
}

func (itemScope) isMarkScope()  {}
func (feedScope) isMarkScope()  {}
func (groupScope) isMarkScope() {}

type markRequest struct {
	action markAction
	scope  markScope
}

// parseMark reads the mark/as/id/before parameters into a markRequest.
// Missing co-parameters, an unknown scope or action, and malformed
// numerics all return ok=false: a bad mark directive is silently
// dropped and the rest of the request still runs.
func parseMark(params Params) (markRequest, bool) {
	if !params.Has("as") || !params.Has("id") {
		return markRequest{}, false
	}

	action := markAction(params.Get("as"))
	switch action {
	case actionRead, actionUnread, actionSaved, actionUnsaved:
	default:
		return markRequest{}, false
	}

	id := params.Get("id")

	switch params.Get("mark") {
	case "item":
		ids, ok := parseIDList(id)
		if !ok || len(ids) == 0 {
			return markRequest{}, false
		}
		return markRequest{action: action, scope: itemScope{IDs: ids}}, true

	case "feed":
		feedID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return markRequest{}, false
		}
		if action == actionSaved || action == actionUnsaved {
			return markRequest{}, false
		}
		return markRequest{action: action, scope: feedScope{ID: feedID, Before: parseBefore(params)}}, true

	case "group":
		groupID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return markRequest{}, false
		}
		if action == actionSaved || action == actionUnsaved {
			return markRequest{}, false
		}
		return markRequest{action: action, scope: groupScope{ID: groupID, Before: parseBefore(params)}}, true
	}

	return markRequest{}, false
}

func parseBefore(params Params) int64 {
	before, err := strconv.ParseInt(params.Get("before"), 10, 64)
	if err != nil || before < 0 {
		return 0
	}
	return before
}

// applyMark performs the mutation. Targets owned by another user match
// zero rows; that is never an error.
func (h *Handler) applyMark(ctx context.Context, userID int64, req markRequest) error {
	now := time.Now().Unix()

	switch scope := req.scope.(type) {
	case itemScope:
		switch req.action {
		case actionRead:
			return h.items.SetReadByIDs(ctx, userID, scope.IDs, now)
		case actionUnread:
			return h.items.SetReadByIDs(ctx, userID, scope.IDs, 0)
		case actionSaved:
			return h.items.SetSavedByIDs(ctx, userID, scope.IDs, true)
		case actionUnsaved:
			return h.items.SetSavedByIDs(ctx, userID, scope.IDs, false)
		}

	case feedScope:
		readOn := now
		if req.action == actionUnread {
			readOn = 0
		}
		return h.items.SetReadByFeeds(ctx, userID, []int64{scope.ID}, scope.Before, readOn)

	case groupScope:
		feedIDs, err := h.groups.FeedIDsInGroups(ctx, userID, []int64{scope.ID})
		if err != nil {
			return fmt.Errorf("resolve group %d feeds: %w", scope.ID, err)
		}
		readOn := now
		if req.action == actionUnread {
			readOn = 0
		}
		return h.items.SetReadByFeeds(ctx, userID, feedIDs, scope.Before, readOn)
	}

	return nil
}

// parseIDList parses a comma-separated id list. Any non-numeric element
// makes the whole list malformed.
func parseIDList(raw string) ([]int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
