// Package capture turns the hook payloads emitted by coding agents into
// canonical agent trace records. Agents disagree on field names; all of that
// variability is absorbed here.
package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a capture event.
type Kind string

const (
	KindFileEdit     Kind = "file_edit"
	KindFileWrite    Kind = "file_write"
	KindSessionStart Kind = "session_start"
	KindSessionEnd   Kind = "session_end"
)

// ErrUnknownEvent is returned when a payload cannot be classified.
var ErrUnknownEvent = errors.New("unrecognized capture event")

// ParseKind parses a kind name, accepting the hook event names agents use.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "file_edit", "edit", "multiedit", "afterfileedit":
		return KindFileEdit, nil
	case "file_write", "write":
		return KindFileWrite, nil
	case "session_start", "sessionstart":
		return KindSessionStart, nil
	case "session_end", "sessionend", "stop":
		return KindSessionEnd, nil
	default:
		return "", fmt.Errorf("%w: kind %q", ErrUnknownEvent, s)
	}
}

// Edit is one string replacement applied to a file.
type Edit struct {
	OldString string
	NewString string
}

// FileEdit is an in-place edit of an existing file.
type FileEdit struct {
	Path  string
	Edits []Edit
}

// FileWrite replaces a file's whole content.
type FileWrite struct {
	Path    string
	Content string
}

// Session marks the start or end of an agent session.
type Session struct {
	// Reason is the agent supplied source or reason, if any.
	Reason string
}

// Event is a classified capture event. Exactly one of FileEdit, FileWrite
// and Session is set, according to Kind.
type Event struct {
	Kind Kind

	SessionID       string
	ConversationURL string
	Model           string

	// Cwd is the directory relative file paths are resolved against.
	Cwd string

	FileEdit  *FileEdit
	FileWrite *FileWrite
	Session   *Session
}

// Path returns the file the event touches, if any.
func (e *Event) Path() string {
	switch {
	case e.FileEdit != nil:
		return e.FileEdit.Path
	case e.FileWrite != nil:
		return e.FileWrite.Path
	default:
		return ""
	}
}

type editPayload struct {
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
}

type toolInput struct {
	FilePath  string        `json:"file_path"`
	Path      string        `json:"path"`
	OldString string        `json:"old_string"`
	NewString string        `json:"new_string"`
	Content   string        `json:"content"`
	Edits     []editPayload `json:"edits"`
}

// payload is the union of the fields seen across agents' hook payloads.
type payload struct {
	HookEventName string `json:"hook_event_name"`
	Event         string `json:"event"`

	SessionID       string `json:"session_id"`
	SessionIDCamel  string `json:"sessionId"`
	ConversationID  string `json:"conversation_id"`
	ConversationURL string `json:"conversation_url"`

	Cwd            string   `json:"cwd"`
	WorkspaceRoots []string `json:"workspace_roots"`

	ToolName  string     `json:"tool_name"`
	ToolInput *toolInput `json:"tool_input"`

	FilePath string        `json:"file_path"`
	Content  string        `json:"content"`
	Edits    []editPayload `json:"edits"`

	Model          json.RawMessage `json:"model"`
	ModelID        string          `json:"model_id"`
	ModelIDCamel   string          `json:"modelId"`
	ModelName      string          `json:"model_name"`
	ModelNameCamel string          `json:"modelName"`

	Source string `json:"source"`
	Reason string `json:"reason"`
}

// ParseEvent classifies a hook payload. A non-empty hint overrides the kind
// the payload would otherwise be classified as.
func ParseEvent(data []byte, hint Kind) (*Event, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding capture payload: %w", err)
	}

	kind := hint
	if kind == "" {
		kind = p.kind()
	}
	if kind == "" {
		return nil, ErrUnknownEvent
	}

	ev := &Event{
		Kind:            kind,
		SessionID:       firstNonEmpty(p.SessionID, p.SessionIDCamel, p.ConversationID),
		ConversationURL: p.ConversationURL,
		Model:           p.model(),
		Cwd:             p.Cwd,
	}
	if ev.Cwd == "" && len(p.WorkspaceRoots) > 0 {
		ev.Cwd = p.WorkspaceRoots[0]
	}

	in := p.ToolInput
	if in == nil {
		in = &toolInput{}
	}
	path := firstNonEmpty(in.FilePath, in.Path, p.FilePath)

	switch kind {
	case KindFileEdit:
		if path == "" {
			return nil, fmt.Errorf("%w: file edit without a file path", ErrUnknownEvent)
		}
		edit := &FileEdit{Path: path}
		for _, e := range append(in.Edits, p.Edits...) {
			edit.Edits = append(edit.Edits, Edit(e))
		}
		if in.NewString != "" || in.OldString != "" {
			edit.Edits = append(edit.Edits, Edit{OldString: in.OldString, NewString: in.NewString})
		}
		ev.FileEdit = edit

	case KindFileWrite:
		if path == "" {
			return nil, fmt.Errorf("%w: file write without a file path", ErrUnknownEvent)
		}
		ev.FileWrite = &FileWrite{Path: path, Content: firstNonEmpty(in.Content, p.Content)}

	case KindSessionStart, KindSessionEnd:
		ev.Session = &Session{Reason: firstNonEmpty(p.Source, p.Reason)}

	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnknownEvent, kind)
	}

	return ev, nil
}

func (p *payload) kind() Kind {
	for _, name := range []string{p.HookEventName, p.Event} {
		if name == "" {
			continue
		}
		if k, err := ParseKind(name); err == nil {
			return k
		}
	}

	if p.ToolName != "" {
		if k, err := ParseKind(p.ToolName); err == nil {
			return k
		}
	}

	in := p.ToolInput
	switch {
	case in != nil && (len(in.Edits) > 0 || in.NewString != ""):
		return KindFileEdit
	case in != nil && in.Content != "":
		return KindFileWrite
	case len(p.Edits) > 0:
		return KindFileEdit
	case p.FilePath != "" && p.Content != "":
		return KindFileWrite
	}
	return ""
}

// model reads the model identity from whichever field the agent used. The
// "model" field may be a string or an object with an id.
func (p *payload) model() string {
	var fromModel string
	if raw := bytes.TrimSpace(p.Model); len(raw) > 0 {
		switch raw[0] {
		case '"':
			_ = json.Unmarshal(raw, &fromModel)
		case '{':
			var obj struct {
				ID          string `json:"id"`
				Name        string `json:"name"`
				DisplayName string `json:"display_name"`
			}
			if json.Unmarshal(raw, &obj) == nil {
				fromModel = firstNonEmpty(obj.ID, obj.Name, obj.DisplayName)
			}
		}
	}
	return firstNonEmpty(fromModel, p.ModelID, p.ModelIDCamel, p.ModelName, p.ModelNameCamel)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
