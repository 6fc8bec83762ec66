package category

import "testing"

func TestUnconfiguredCategory(t *testing.T) {
	tr := NewTracker()
	tr.Register(1, "Consoles")

	if _, ok := tr.Requirements(1); ok {
		t.Error("A registered category starts unconfigured")
	}
	if _, ok := tr.Missing(1); ok {
		t.Error("Missing() must report unconfigured, not an empty list")
	}
	if tr.IsComplete(1) {
		t.Error("Unconfigured categories are never complete")
	}
}

func TestRequirementsAndCoverage(t *testing.T) {
	tr := NewTracker()
	tr.Register(1, "Consoles")
	tr.SetRequirements(1, []string{"Storage", "Colour", "Grade"})

	missing, ok := tr.Missing(1)
	if !ok || len(missing) != 3 {
		t.Fatalf("Missing = %v, want all three requirements", missing)
	}

	tr.MarkCovered(1, "Storage")
	tr.MarkSkipped(1, "Colour")
	missing, _ = tr.Missing(1)
	if len(missing) != 1 || missing[0] != "Grade" {
		t.Errorf("Missing = %v, want [Grade]", missing)
	}
	if tr.IsComplete(1) {
		t.Error("Category with a missing attribute is not complete")
	}

	tr.MarkAlwaysFetch(1, "Grade")
	if !tr.IsComplete(1) {
		t.Error("Covered + skipped + always-fetch should be complete")
	}
}

func TestMarkAlwaysFetchAddsRequirement(t *testing.T) {
	tr := NewTracker()
	tr.SetRequirements(1, []string{"Storage"})
	tr.MarkAlwaysFetch(1, "Serial")

	reqs, _ := tr.Requirements(1)
	found := false
	for _, r := range reqs {
		if r == "Serial" {
			found = true
		}
	}
	if !found {
		t.Error("Always-fetch attributes must stay in the requirement list")
	}

	// Marking an existing requirement must not duplicate it.
	tr.MarkAlwaysFetch(1, "Storage")
	reqs, _ = tr.Requirements(1)
	if len(reqs) != 2 {
		t.Errorf("Requirements = %v, want no duplicates", reqs)
	}
}

func TestVerificationWindow(t *testing.T) {
	tr := NewTracker()
	tr.SetRequirements(1, []string{"Storage"})
	tr.StartVerification(1, []string{"Storage"})

	if !tr.InVerification(1) {
		t.Fatal("Verification should be open after start")
	}
	for i := 0; i < VerifyThreshold; i++ {
		if !tr.InVerification(1) {
			t.Fatalf("Window closed early after %d fetches", i)
		}
		tr.IncrementVerify(1)
	}
	if tr.InVerification(1) {
		t.Error("Window should close at the threshold")
	}
	if !tr.Verified(1) {
		t.Error("Category should be verified after the threshold")
	}
	if tr.VerifyCount(1) != VerifyThreshold {
		t.Errorf("VerifyCount = %d, want %d", tr.VerifyCount(1), VerifyThreshold)
	}
}

func TestVerificationNeverStarted(t *testing.T) {
	tr := NewTracker()
	tr.SetRequirements(1, []string{"Storage"})
	if tr.InVerification(1) {
		t.Error("Categories that never started verification owe no fetches")
	}
	if tr.Verified(1) {
		t.Error("Never-started categories are not verified either")
	}
}

func TestNewAttributesDuringVerification(t *testing.T) {
	tr := NewTracker()
	tr.StartVerification(1, []string{"Storage", "Colour"})

	fresh := tr.NewAttributes(1, []string{"Storage", "Grade", "Colour", "Serial"})
	if len(fresh) != 2 || fresh[0] != "Grade" || fresh[1] != "Serial" {
		t.Errorf("NewAttributes = %v, want [Grade Serial]", fresh)
	}

	tr.AddKnownAttributes(1, fresh)
	if fresh := tr.NewAttributes(1, []string{"Grade", "Serial"}); len(fresh) != 0 {
		t.Errorf("Attributes should only be new once, got %v", fresh)
	}
}

func TestMarksAreMonotonic(t *testing.T) {
	tr := NewTracker()
	tr.SetRequirements(1, []string{"Storage"})

	tr.MarkSkipped(1, "Storage")
	tr.MarkSkipped(1, "Storage")
	if got := tr.Skipped(1); len(got) != 1 {
		t.Errorf("Skipped = %v, want a single entry", got)
	}
	if !tr.IsSkipped(1, "Storage") {
		t.Error("IsSkipped should hold after marking")
	}
}

func TestSnapshotRestoreRoundtrip(t *testing.T) {
	tr := NewTracker()
	tr.Register(7, "Phones")
	tr.SetRequirements(7, []string{"Storage", "Colour", "Grade"})
	tr.MarkCovered(7, "Storage")
	tr.MarkSkipped(7, "Colour")
	tr.MarkAlwaysFetch(7, "Grade")
	tr.StartVerification(7, []string{"Storage", "Colour", "Grade"})
	tr.IncrementVerify(7)
	tr.IncrementVerify(7)

	snap := tr.Snapshot(7)

	fresh := NewTracker()
	fresh.Restore(7, snap)

	if fresh.Name(7) != "Phones" {
		t.Errorf("Name = %q after restore", fresh.Name(7))
	}
	reqs, ok := fresh.Requirements(7)
	if !ok || len(reqs) != 3 {
		t.Errorf("Requirements = %v after restore", reqs)
	}
	if !fresh.IsCovered(7, "Storage") || !fresh.IsSkipped(7, "Colour") || !fresh.IsAlwaysFetch(7, "Grade") {
		t.Error("Coverage marks lost in roundtrip")
	}
	if fresh.VerifyCount(7) != 2 || !fresh.InVerification(7) {
		t.Error("Verification progress lost in roundtrip")
	}
	if !fresh.IsComplete(7) {
		t.Error("Completeness should survive the roundtrip")
	}
}

func TestSnapshotUnconfigured(t *testing.T) {
	tr := NewTracker()
	tr.Register(3, "Laptops")

	snap := tr.Snapshot(3)
	if snap.Configured {
		t.Error("Snapshot of an unconfigured category must record that")
	}

	fresh := NewTracker()
	fresh.Restore(3, snap)
	if _, ok := fresh.Requirements(3); ok {
		t.Error("Restoring an unconfigured snapshot must not configure the category")
	}
}
