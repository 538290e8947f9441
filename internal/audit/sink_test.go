package audit

import (
	"errors"
	"testing"
)

func TestQueryValidateNormalizesLimit(t *testing.T) {
	q := Query{Channel: ChannelDomain, OrgID: " org-a "}
	if err := q.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if q.OrgID != "org-a" {
		t.Fatalf("org id not trimmed: %q", q.OrgID)
	}
	if q.Limit != defaultPageSize {
		t.Fatalf("default limit not applied: %d", q.Limit)
	}

	q = Query{Channel: ChannelDomain, OrgID: "org-a", Limit: maxPageSize + 1}
	if err := q.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if q.Limit != defaultPageSize {
		t.Fatalf("oversized limit not clamped: %d", q.Limit)
	}
}

func TestQueryValidateRejections(t *testing.T) {
	cases := []Query{
		{OrgID: "org-a"},
		{Channel: "bogus", OrgID: "org-a"},
		{Channel: ChannelDomain},
	}
	for i, q := range cases {
		if err := q.Validate(); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("case %d: expected ErrInvalidEvent, got %v", i, err)
		}
	}
}
