package coin

import "testing"

func TestNewRejectsNonPositiveValue(t *testing.T) {
	if _, err := New("owner1", 0, "", nil); err != ErrInvalidValue {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
	if _, err := New("owner1", -5, "", nil); err != ErrInvalidValue {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestTransferRewritesOwnerAndAppendsHistory(t *testing.T) {
	c, err := New("owner1", 10, "", nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := c.Transfer("owner2", "sig", []int{1, 2, 3}, 1000); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if c.OwnerID != "owner2" {
		t.Fatalf("owner not rewritten: %s", c.OwnerID)
	}
	if len(c.History) != 1 {
		t.Fatalf("expected history length 1, got %d", len(c.History))
	}
	if !c.VerifyIntegrity() {
		t.Fatalf("integrity check failed after transfer")
	}
}

func TestTransferFailsOnInactiveStatus(t *testing.T) {
	c, _ := New("owner1", 10, "", nil)
	c.Status = StatusFrozen
	c.recomputeHash()
	err := c.Transfer("owner2", "sig", nil, 1000)
	var ise *InactiveStatusError
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := err.(*InactiveStatusError); !ok {
		t.Fatalf("expected InactiveStatusError, got %T: %v", err, err)
	}
	_ = ise
}

func TestTransferRequiresSignatureAndRecipient(t *testing.T) {
	c, _ := New("owner1", 10, "", nil)
	if err := c.Transfer("", "sig", nil, 1000); err != ErrInvalidRecipient {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
	if err := c.Transfer("owner2", "", nil, 1000); err != ErrMissingSignature {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
}

func TestSplitThenMerge(t *testing.T) {
	c, _ := New("owner1", 10, "", nil)
	sibling, err := c.Split(4, 1000)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if c.Value != 6 || sibling.Value != 4 {
		t.Fatalf("unexpected values after split: c=%d sibling=%d", c.Value, sibling.Value)
	}
	if err := c.Merge(sibling, 2000); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if c.Value != 10 {
		t.Fatalf("expected merged value 10, got %d", c.Value)
	}
	if sibling.Status != StatusMerged {
		t.Fatalf("expected sibling merged, got %s", sibling.Status)
	}
	if !c.VerifyIntegrity() || !sibling.VerifyIntegrity() {
		t.Fatalf("integrity check failed after split/merge")
	}
	if len(c.History) != 2 {
		t.Fatalf("expected split then merge events, got %d", len(c.History))
	}
	if c.History[0].Kind != EventSplit || c.History[1].Kind != EventMerge {
		t.Fatalf("unexpected history kinds: %v %v", c.History[0].Kind, c.History[1].Kind)
	}
}

func TestSplitRejectsOutOfRangeValue(t *testing.T) {
	c, _ := New("owner1", 10, "", nil)
	if _, err := c.Split(0, 1000); err != ErrBadSplitValue {
		t.Fatalf("expected ErrBadSplitValue, got %v", err)
	}
	if _, err := c.Split(10, 1000); err != ErrBadSplitValue {
		t.Fatalf("expected ErrBadSplitValue, got %v", err)
	}
	if _, err := c.Split(11, 1000); err != ErrBadSplitValue {
		t.Fatalf("expected ErrBadSplitValue, got %v", err)
	}
}

func TestMergeRequiresSameOwnerAndActive(t *testing.T) {
	a, _ := New("owner1", 5, "", nil)
	b, _ := New("owner2", 5, "", nil)
	if err := a.Merge(b, 1000); err != ErrOwnerMismatch {
		t.Fatalf("expected ErrOwnerMismatch, got %v", err)
	}

	c, _ := New("owner1", 5, "", nil)
	d, _ := New("owner1", 5, "", nil)
	d.Status = StatusSpent
	d.recomputeHash()
	if err := c.Merge(d, 1000); err != ErrNotActive {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	c, _ := New("owner1", 7, "", map[string]string{"note": "test"})
	_ = c.Transfer("owner2", "sig", []int{0}, 1000)

	data, err := c.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	round, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if !round.VerifyIntegrity() {
		t.Fatalf("round-tripped coin failed integrity check")
	}
	if round.ID != c.ID || round.OwnerID != c.OwnerID || round.Value != c.Value {
		t.Fatalf("round trip mismatch: %+v vs %+v", round, c)
	}
}

func TestIsExpired(t *testing.T) {
	c, _ := New("owner1", 5, "", nil)
	c.ExpiryDate = 500
	c.recomputeHash()
	if c.IsExpired(400) {
		t.Fatalf("should not be expired yet")
	}
	if !c.IsExpired(500) {
		t.Fatalf("should be expired at boundary")
	}
}
