package step

import (
	"context"
	"fmt"
	"strings"

	"github.com/stevehiehn/formwizard/internal/form"
)

// TextStep implements the "text" handler: a single text field copied into
// the cached values on submit.
//
// Parameters: field (required), title, description, required ("true"),
// min_length.
type TextStep struct {
	Field       string
	Title       string
	Description string
	Required    bool
	MinLength   int
}

func newTextStep(params map[string]string) (Handler, error) {
	field := params["field"]
	if field == "" {
		return nil, fmt.Errorf("text: missing required param 'field'")
	}
	s := &TextStep{
		Field:       field,
		Title:       params["title"],
		Description: params["description"],
		Required:    params["required"] == "true",
	}
	if raw := params["min_length"]; raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &s.MinLength); err != nil {
			return nil, fmt.Errorf("text: invalid min_length %q", raw)
		}
	}
	if s.Title == "" {
		s.Title = field
	}
	return s, nil
}

func (s *TextStep) FormID() string { return "text_step_" + s.Field }

func (s *TextStep) Build(_ context.Context, f *form.Form, st *form.State) error {
	cached := st.CachedValues()
	def, _ := cached[s.Field].(string)
	f.Add(form.Element{
		Name:        s.Field,
		Type:        form.TypeTextfield,
		Title:       s.Title,
		Description: s.Description,
		Default:     def,
		Required:    s.Required,
	})
	return nil
}

func (s *TextStep) Validate(_ context.Context, st *form.State) error {
	if s.MinLength > 0 {
		v := st.StringValue(s.Field)
		if v != "" && len([]rune(v)) < s.MinLength {
			st.SetError(s.Field, fmt.Sprintf("%s must be at least %d characters.", s.Title, s.MinLength))
		}
	}
	return nil
}

func (s *TextStep) Submit(_ context.Context, st *form.State) error {
	st.CachedValues()[s.Field] = st.StringValue(s.Field)
	return nil
}

// ChoiceStep implements the "choice" handler: a select list limited to a
// fixed set of options.
//
// Parameters: field (required), options (required, comma separated), title.
type ChoiceStep struct {
	Field   string
	Title   string
	Options []string
}

func newChoiceStep(params map[string]string) (Handler, error) {
	field := params["field"]
	if field == "" {
		return nil, fmt.Errorf("choice: missing required param 'field'")
	}
	var options []string
	for _, o := range strings.Split(params["options"], ",") {
		if o = strings.TrimSpace(o); o != "" {
			options = append(options, o)
		}
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("choice: missing required param 'options'")
	}
	title := params["title"]
	if title == "" {
		title = field
	}
	return &ChoiceStep{Field: field, Title: title, Options: options}, nil
}

func (s *ChoiceStep) FormID() string { return "choice_step_" + s.Field }

func (s *ChoiceStep) Build(_ context.Context, f *form.Form, st *form.State) error {
	opts := make(map[string]string, len(s.Options))
	for _, o := range s.Options {
		opts[o] = o
	}
	def, _ := st.CachedValues()[s.Field].(string)
	f.Add(form.Element{
		Name:     s.Field,
		Type:     form.TypeSelect,
		Title:    s.Title,
		Default:  def,
		Required: true,
		Options:  opts,
	})
	return nil
}

func (s *ChoiceStep) Validate(_ context.Context, st *form.State) error {
	v := st.StringValue(s.Field)
	if v == "" {
		return nil
	}
	for _, o := range s.Options {
		if o == v {
			return nil
		}
	}
	st.SetError(s.Field, fmt.Sprintf("%q is not a valid choice.", v))
	return nil
}

func (s *ChoiceStep) Submit(_ context.Context, st *form.State) error {
	st.CachedValues()[s.Field] = st.StringValue(s.Field)
	return nil
}
