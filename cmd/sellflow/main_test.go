package main

import (
	"testing"
)

func TestCommandRegistration(t *testing.T) {
	want := map[string]bool{
		"research":     false,
		"setup":        false,
		"price-adjust": false,
		"run":          false,
		"list":         false,
	}
	for _, c := range []string{"research", "setup", "price-adjust", "run", "list"} {
		for _, cmd := range []interface{ Name() string }{researchCmd, setupCmd, priceAdjustCmd, runCmd, listCmd} {
			if cmd.Name() == c {
				want[c] = true
			}
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not defined", name)
		}
	}
}

func TestMenuModelSelection(t *testing.T) {
	m := newMenuModel()
	if m.chosen != choiceNone {
		t.Fatalf("fresh menu chosen = %v", m.chosen)
	}
	if len(m.list.Items()) != 4 {
		t.Errorf("menu items = %d, want 4", len(m.list.Items()))
	}
	first, ok := m.list.Items()[0].(menuItem)
	if !ok || first.choice != choiceResearch {
		t.Errorf("first item = %+v, want research", m.list.Items()[0])
	}
}
