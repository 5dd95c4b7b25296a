// Package ajax holds the structured commands returned to modal (AJAX)
// clients instead of a full-page redirect.
package ajax

import "encoding/json"

// Command is a single instruction for the client.
type Command interface {
	Command() string
}

// OpenModalWizard asks the client to load a wizard step into the modal.
type OpenModalWizard struct {
	Wizard      string `json:"wizard"`
	Collection  string `json:"tempstore_id"`
	MachineName string `json:"machine_name"`
	Step        string `json:"step"`
}

func (OpenModalWizard) Command() string { return "openModalWizard" }

// Redirect sends the client to URL.
type Redirect struct {
	URL string `json:"url"`
}

func (Redirect) Command() string { return "redirect" }

// CloseModal closes the open modal dialog.
type CloseModal struct{}

func (CloseModal) Command() string { return "closeDialog" }

// Response is an ordered list of commands.
type Response struct {
	Commands []Command
}

// NewResponse creates a response with the given commands.
func NewResponse(commands ...Command) *Response {
	return &Response{Commands: commands}
}

// Add appends a command.
func (r *Response) Add(c Command) *Response {
	r.Commands = append(r.Commands, c)
	return r
}

// MarshalJSON renders each command as an object tagged with its name.
func (r *Response) MarshalJSON() ([]byte, error) {
	out := make([]map[string]any, 0, len(r.Commands))
	for _, c := range r.Commands {
		data, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		obj := map[string]any{}
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		obj["command"] = c.Command()
		out = append(out, obj)
	}
	return json.Marshal(out)
}
