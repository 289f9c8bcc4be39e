package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const groupsBatchSize = 500

// Group is the subset of community fields used by the reposted-groups report.
type Group struct {
	ID         json.Number `json:"id"`
	Name       string      `json:"name"`
	ScreenName string      `json:"screen_name"`
}

// GroupsByID resolves community ids in batches of 500.
func (c *Client) GroupsByID(ctx context.Context, ids []string) ([]Group, error) {
	var groups []Group
	for start := 0; start < len(ids); start += groupsBatchSize {
		end := min(start+groupsBatchSize, len(ids))

		var raw json.RawMessage
		params := map[string]string{"group_ids": strings.Join(ids[start:end], ",")}
		if err := c.Call(ctx, "groups.getById", params, &raw); err != nil {
			return nil, err
		}

		batch, err := decodeGroups(raw)
		if err != nil {
			return nil, fmt.Errorf("vk groups.getById: %w", err)
		}
		groups = append(groups, batch...)
	}
	return groups, nil
}

// decodeGroups accepts both the legacy array response and the newer
// {"groups": [...]} object.
func decodeGroups(raw json.RawMessage) ([]Group, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var groups []Group
		if err := json.Unmarshal(raw, &groups); err != nil {
			return nil, fmt.Errorf("decode groups: %w", err)
		}
		return groups, nil
	}

	var wrapped struct {
		Groups []Group `json:"groups"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}
	return wrapped.Groups, nil
}
