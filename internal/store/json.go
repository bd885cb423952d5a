package store

import (
	"encoding/json"

	"github.com/sxn-dev/sxn/internal/sxnerr"
)

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", sxnerr.Wrap(sxnerr.KindStorage, err, "marshal %T", v)
	}
	return string(b), nil
}

func unmarshalTags(raw string) ([]string, error) {
	var v []string
	if raw == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindStorage, err, "unmarshal tags")
	}
	return v, nil
}

func unmarshalMetadata(raw string) (map[string]any, error) {
	v := map[string]any{}
	if raw == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindStorage, err, "unmarshal metadata")
	}
	return v, nil
}

func unmarshalWorktrees(raw string) (map[string]Worktree, error) {
	v := map[string]Worktree{}
	if raw == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindStorage, err, "unmarshal worktrees")
	}
	return v, nil
}

func unmarshalProjects(raw string) ([]string, error) {
	var v []string
	if raw == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindStorage, err, "unmarshal projects")
	}
	return v, nil
}
