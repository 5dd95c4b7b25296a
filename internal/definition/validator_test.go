package definition

import (
	"testing"

	wzerrors "github.com/stevehiehn/formwizard/internal/errors"
)

type handlerNames map[string]bool

func (h handlerNames) Known(name string) bool { return h[name] }

var builtins = handlerNames{"text": true}

func validDefinition() *Definition {
	return &Definition{
		Name:       "test",
		Collection: "test",
		Operations: []Operation{
			{Key: "one", Handler: "text"},
			{Key: "two", Handler: "text"},
		},
	}
}

func TestValidateAcceptsValidDefinition(t *testing.T) {
	if err := Validate(validDefinition(), builtins); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsDuplicateKeys(t *testing.T) {
	d := validDefinition()
	d.Operations[1].Key = "one"
	err := Validate(d, builtins)
	if !wzerrors.IsType(err, wzerrors.InvalidDefinition) {
		t.Fatalf("expected INVALID_DEFINITION, got %v", err)
	}
}

func TestValidateRejectsEmptyKey(t *testing.T) {
	d := validDefinition()
	d.Operations[0].Key = ""
	if err := Validate(d, builtins); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestValidateRejectsUnknownHandler(t *testing.T) {
	d := validDefinition()
	d.Operations[1].Handler = "bogus"
	err := Validate(d, builtins)
	if !wzerrors.IsType(err, wzerrors.HandlerNotFound) {
		t.Fatalf("expected HANDLER_NOT_FOUND, got %v", err)
	}
}

func TestValidateSkipsHandlerCheckWithoutSet(t *testing.T) {
	d := validDefinition()
	d.Operations[1].Handler = "bogus"
	if err := Validate(d, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsMissingHandler(t *testing.T) {
	d := validDefinition()
	d.Operations[0].Handler = ""
	if err := Validate(d, builtins); err == nil {
		t.Fatal("expected error for missing handler")
	}
}

func TestValidateRejectsMissingCollection(t *testing.T) {
	d := validDefinition()
	d.Collection = ""
	if err := Validate(d, builtins); err == nil {
		t.Fatal("expected error for missing collection")
	}
}

func TestValidateRejectsUnknownReturnStep(t *testing.T) {
	d := validDefinition()
	d.Conditions = &ConditionSlot{Slot: "conditions", ReturnStep: "three"}
	if err := Validate(d, builtins); err == nil {
		t.Fatal("expected error for unknown return step")
	}
	d.Conditions.ReturnStep = "two"
	if err := Validate(d, builtins); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsConditionsWithoutSlot(t *testing.T) {
	d := validDefinition()
	d.Conditions = &ConditionSlot{ReturnStep: "two"}
	if err := Validate(d, builtins); err == nil {
		t.Fatal("expected error for conditions without slot")
	}
}
