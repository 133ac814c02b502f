package verifier

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// LoadRegistry reads every verifier_registry row and its verifier_bindings
// into the (defs, bindings) shape NewRunner expects. Disabled defs are
// still returned (NewRunner/Verify skip them at run time via d.Enabled);
// bindings referencing an unknown verifier_name are silently dropped by
// Runner.resolveDefs.
func LoadRegistry(ctx context.Context, db *sql.DB) ([]Def, map[string][]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT verifier_name, type, aciru_order, spec, enabled FROM verifier_registry`)
	if err != nil {
		return nil, nil, fmt.Errorf("verifier: list registry: %w", err)
	}
	defer rows.Close()

	var defs []Def
	for rows.Next() {
		var (
			name, typ, order string
			spec             json.RawMessage
			enabled          bool
		)
		if err := rows.Scan(&name, &typ, &order, &spec, &enabled); err != nil {
			return nil, nil, fmt.Errorf("verifier: scan registry row: %w", err)
		}
		defs = append(defs, Def{Name: name, Type: Type(typ), AciruOrder: order, Spec: spec, Enabled: enabled})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("verifier: iterate registry: %w", err)
	}

	bindingRows, err := db.QueryContext(ctx, `
		SELECT verifier_name, tool_name FROM verifier_bindings`)
	if err != nil {
		return nil, nil, fmt.Errorf("verifier: list bindings: %w", err)
	}
	defer bindingRows.Close()

	bindings := make(map[string][]string)
	for bindingRows.Next() {
		var verifierName, toolName string
		if err := bindingRows.Scan(&verifierName, &toolName); err != nil {
			return nil, nil, fmt.Errorf("verifier: scan binding row: %w", err)
		}
		bindings[toolName] = append(bindings[toolName], verifierName)
	}
	if err := bindingRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("verifier: iterate bindings: %w", err)
	}

	return defs, bindings, nil
}
