package solver

import (
	"encoding/json"
	"testing"
)

func TestJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		make func() (*Solver, error)
	}{
		{"Adam", func() (*Solver, error) {
			return NewAdam(1e-3, 1e-8, 0.9, 0.999, 32)
		}},
		{"RMSProp", func() (*Solver, error) {
			return NewRMSProp(1e-3, 1e-8, 0.001, 0.999, 32, -1.0)
		}},
		{"Vanilla", func() (*Solver, error) {
			return NewVanilla(1e-3, 32, -1.0)
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			original, err := test.make()
			if err != nil {
				t.Fatalf("could not create solver: %v", err)
			}

			data, err := json.Marshal(original)
			if err != nil {
				t.Fatalf("could not marshal solver: %v", err)
			}

			var restored Solver
			if err := json.Unmarshal(data, &restored); err != nil {
				t.Fatalf("could not unmarshal solver: %v", err)
			}

			if restored.Type != original.Type {
				t.Errorf("restored type = %v, want %v", restored.Type,
					original.Type)
			}

			// The restored Config may be a pointer to the concrete
			// configuration, so compare serialized forms
			redata, err := json.Marshal(&restored)
			if err != nil {
				t.Fatalf("could not marshal restored solver: %v", err)
			}
			if string(redata) != string(data) {
				t.Errorf("restored solver marshals to %v, want %v",
					string(redata), string(data))
			}
			if restored.Solver == nil {
				t.Error("restored solver has no backing optimizer")
			}
		})
	}
}

func TestGobDelegatesToJSON(t *testing.T) {
	original, err := NewDefaultAdam(3e-4, 16)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}

	data, err := original.GobEncode()
	if err != nil {
		t.Fatalf("could not encode solver: %v", err)
	}

	var restored Solver
	if err := restored.GobDecode(data); err != nil {
		t.Fatalf("could not decode solver: %v", err)
	}

	if restored.Type != Adam {
		t.Errorf("restored type = %v, want %v", restored.Type, Adam)
	}
	redata, err := restored.GobEncode()
	if err != nil {
		t.Fatalf("could not encode restored solver: %v", err)
	}
	if string(redata) != string(data) {
		t.Errorf("restored solver encodes to %v, want %v", string(redata),
			string(data))
	}
}

func TestNewSolverRejectsMismatchedType(t *testing.T) {
	if _, err := newSolver(Adam, VanillaConfig{StepSize: 0.1}); err == nil {
		t.Error("expected an error for an Adam solver with a Vanilla " +
			"configuration")
	}
}
