package filter

import (
	"github.com/youssefsiam38/agentloop/types"
)

// enforceChain extends removed until no kept tool result lacks its call in
// a kept preceding assistant message and no kept assistant message has a
// call without a kept result. It returns the ids it added.
func enforceChain(messages []*types.Message, removed IDSet) IDSet {
	added := IDSet{}
	isRemoved := func(id string) bool {
		return removed.Has(id) || added.Has(id)
	}

	for {
		changed := false

		// Kept results by call id
		results := make(map[string][]*types.Message)
		for _, msg := range messages {
			if msg.Role == types.RoleTool && !isRemoved(msg.ID) {
				results[msg.ToolCallID] = append(results[msg.ToolCallID], msg)
			}
		}

		// Assistant messages with an unanswered call go, with their results.
		for _, msg := range messages {
			if msg.Role != types.RoleAssistant || !msg.HasToolCalls() || isRemoved(msg.ID) {
				continue
			}
			complete := true
			for _, call := range msg.ToolCalls {
				if len(results[call.ID]) == 0 {
					complete = false
					break
				}
			}
			if complete {
				continue
			}
			added[msg.ID] = struct{}{}
			for _, call := range msg.ToolCalls {
				for _, res := range results[call.ID] {
					added[res.ID] = struct{}{}
				}
			}
			changed = true
		}

		// Results whose call is not in a kept preceding assistant message go.
		calls := make(map[string]bool)
		for _, msg := range messages {
			if isRemoved(msg.ID) {
				continue
			}
			switch msg.Role {
			case types.RoleAssistant:
				for _, call := range msg.ToolCalls {
					calls[call.ID] = true
				}
			case types.RoleTool:
				if !calls[msg.ToolCallID] {
					added[msg.ID] = struct{}{}
					changed = true
				}
			}
		}

		if !changed {
			return added
		}
	}
}

// keep returns messages whose id is not in removed, in order.
func keep(messages []*types.Message, removed IDSet) []*types.Message {
	out := make([]*types.Message, 0, len(messages))
	for _, msg := range messages {
		if !removed.Has(msg.ID) {
			out = append(out, msg)
		}
	}
	return out
}

// ChainIntact reports whether every tool result follows a matching call and
// every call has a result.
func ChainIntact(messages []*types.Message) bool {
	return enforceChain(messages, IDSet{}).Len() == 0
}
