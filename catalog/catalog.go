package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// AvailableTrack describes one track a publisher's catalog advertises.
type AvailableTrack struct {
	Name     string
	Kind     string
	Priority int
}

// Available is the unified view both catalog wire formats parse into:
// track name to its advertised kind and priority.
type Available map[string]AvailableTrack

type standardEntry struct {
	TrackName *string `json:"trackName"`
	Type      *string `json:"type"`
	Priority  *int    `json:"priority"`
}

type hangKind struct {
	Priority   int                        `json:"priority"`
	Renditions map[string]json.RawMessage `json:"renditions"`
}

// Parse parses one catalog document into an Available map. It selects the
// standard format if the top-level object has a "tracks" array, otherwise
// attempts the HANG format. A JSON parse error or a structurally invalid
// document returns an error and a nil map; the caller must leave its
// current available set unchanged in that case.
func Parse(data []byte, log *slog.Logger) (Available, error) {
	if log == nil {
		log = slog.Default()
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("catalog: invalid document: %w", err)
	}

	if raw, ok := top["tracks"]; ok {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err == nil {
			return parseStandard(arr, log), nil
		}
		// "tracks" present but not an array: fall through to HANG.
	}

	return parseHANG(top, log)
}

func parseStandard(entries []json.RawMessage, log *slog.Logger) Available {
	avail := make(Available, len(entries))
	for _, raw := range entries {
		var e standardEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			log.Warn("catalog: skipping malformed standard track entry", "error", err)
			continue
		}
		if e.TrackName == nil || e.Type == nil || e.Priority == nil {
			log.Warn("catalog: skipping incomplete standard track entry", "raw", string(raw))
			continue
		}
		avail[*e.TrackName] = AvailableTrack{Name: *e.TrackName, Kind: *e.Type, Priority: *e.Priority}
	}
	return avail
}

func parseHANG(top map[string]json.RawMessage, log *slog.Logger) (Available, error) {
	avail := make(Available, len(top))
	for kind, raw := range top {
		var hk hangKind
		if err := json.Unmarshal(raw, &hk); err != nil {
			return nil, fmt.Errorf("catalog: invalid HANG kind %q: %w", kind, err)
		}
		if len(hk.Renditions) == 0 {
			avail[kind] = AvailableTrack{Name: kind, Kind: kind, Priority: 1}
			continue
		}
		for renditionName := range hk.Renditions {
			avail[renditionName] = AvailableTrack{Name: renditionName, Kind: kind, Priority: hk.Priority}
		}
	}
	return avail, nil
}

// Processor holds the most recently successfully parsed catalog. Update
// only replaces the held snapshot on a successful parse, so a malformed
// catalog update leaves the previous available set in effect.
type Processor struct {
	log *slog.Logger

	mu        sync.RWMutex
	available Available
}

// NewProcessor creates a Processor with an empty initial catalog.
func NewProcessor(log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{log: log, available: Available{}}
}

// Update parses data and, on success, replaces the held snapshot. It
// returns the parse error, if any, for the caller to surface via a status
// callback.
func (p *Processor) Update(data []byte) error {
	parsed, err := Parse(data, p.log)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.available = parsed
	p.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the currently held available set.
func (p *Processor) Snapshot() Available {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(Available, len(p.available))
	for k, v := range p.available {
		out[k] = v
	}
	return out
}
