package rank

import (
	"testing"
	"time"

	"ecopoints/internal/models"
)

func tp(t time.Time) *time.Time { return &t }

func day(d int) time.Time {
	return time.Date(2026, 3, d, 12, 0, 0, 0, time.UTC)
}

func student(id, schoolID string, balance, streak int, last *time.Time) models.Actor {
	return models.Actor{
		ID:           id,
		Kind:         models.KindStudent,
		Name:         id,
		SchoolID:     schoolID,
		Balance:      balance,
		Streak:       streak,
		LastActivity: last,
	}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ActorID
	}
	return out
}

func assertOrder(t *testing.T, got []Entry, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d entries %v, want %d %v", len(got), ids(got), len(want), want)
	}
	for i := range want {
		if got[i].ActorID != want[i] {
			t.Fatalf("order = %v, want %v", ids(got), want)
		}
	}
}

func TestOrderingRule(t *testing.T) {
	tests := []struct {
		name string
		a, b Entry
		want bool // a ranks above b
	}{
		{
			name: "higher balance wins",
			a:    Entry{ActorID: "a", Balance: 200},
			b:    Entry{ActorID: "b", Balance: 100},
			want: true,
		},
		{
			name: "equal balance, earlier last activity wins",
			a:    Entry{ActorID: "a", Balance: 100, LastActivity: tp(day(3))},
			b:    Entry{ActorID: "b", Balance: 100, LastActivity: tp(day(5))},
			want: true,
		},
		{
			name: "equal balance and activity, lower id wins",
			a:    Entry{ActorID: "a", Balance: 100, LastActivity: tp(day(3))},
			b:    Entry{ActorID: "b", Balance: 100, LastActivity: tp(day(3))},
			want: true,
		},
		{
			name: "never-active sorts below active at equal balance",
			a:    Entry{ActorID: "a", Balance: 100},
			b:    Entry{ActorID: "b", Balance: 100, LastActivity: tp(day(5))},
			want: false,
		},
		{
			name: "balance dominates recency",
			a:    Entry{ActorID: "a", Balance: 101, LastActivity: tp(day(9))},
			b:    Entry{ActorID: "b", Balance: 100, LastActivity: tp(day(1))},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := less(tt.a, tt.b); got != tt.want {
				t.Errorf("less(a, b) = %v, want %v", got, tt.want)
			}
		})
	}
}

// Two students on 100 points: B last active day 3, A last active day 5.
// B ranks first.
func TestTieBreakEarlierActivityFirst(t *testing.T) {
	ix := NewIndex()
	ix.Upsert(student("student-a", "", 100, 5, tp(day(5))))
	ix.Upsert(student("student-b", "", 100, 3, tp(day(3))))

	assertOrder(t, ix.TopStudents(10), "student-b", "student-a")

	if r, err := ix.StudentRank("student-b"); err != nil || r != 1 {
		t.Errorf("StudentRank(b) = %d, %v, want 1", r, err)
	}
	if r, err := ix.StudentRank("student-a"); err != nil || r != 2 {
		t.Errorf("StudentRank(a) = %d, %v, want 2", r, err)
	}
}

func TestTopNTruncation(t *testing.T) {
	ix := NewIndex()
	ix.Upsert(student("s1", "", 300, 1, tp(day(1))))
	ix.Upsert(student("s2", "", 200, 1, tp(day(1))))
	ix.Upsert(student("s3", "", 200, 1, tp(day(2))))

	// Top 2 cuts after s2; s3 is rank 3 even though it ties s2 on balance.
	assertOrder(t, ix.TopStudents(2), "s1", "s2")

	// Over-asking returns what exists, never padding.
	assertOrder(t, ix.TopStudents(10), "s1", "s2", "s3")

	if got := ix.TopStudents(0); len(got) != 0 {
		t.Errorf("TopStudents(0) returned %d entries", len(got))
	}
}

func TestUpsertRepositions(t *testing.T) {
	ix := NewIndex()
	ix.Upsert(student("s1", "", 50, 1, tp(day(1))))
	ix.Upsert(student("s2", "", 100, 1, tp(day(1))))

	assertOrder(t, ix.TopStudents(10), "s2", "s1")

	// s1 overtakes after earning.
	ix.Upsert(student("s1", "", 150, 2, tp(day(2))))
	assertOrder(t, ix.TopStudents(10), "s1", "s2")

	// No duplicate rows after repeated upserts.
	ix.Upsert(student("s1", "", 150, 2, tp(day(2))))
	if got := ix.TopStudents(10); len(got) != 2 {
		t.Errorf("board has %d entries after re-upsert, want 2", len(got))
	}
}

func TestDeterministicAcrossInsertionOrder(t *testing.T) {
	population := []models.Actor{
		student("s1", "", 100, 1, tp(day(2))),
		student("s2", "", 100, 1, tp(day(2))),
		student("s3", "", 250, 1, tp(day(9))),
		student("s4", "", 100, 1, nil),
		student("s5", "", 40, 1, tp(day(1))),
	}

	forward := NewIndex()
	forward.Warm(population)

	reversed := NewIndex()
	for i := len(population) - 1; i >= 0; i-- {
		reversed.Upsert(population[i])
	}

	a, b := forward.TopStudents(10), reversed.TopStudents(10)
	for i := range a {
		if a[i].ActorID != b[i].ActorID {
			t.Fatalf("insertion order changed ranking: %v vs %v", ids(a), ids(b))
		}
	}
	assertOrder(t, a, "s3", "s1", "s2", "s4", "s5")
}

func TestSchoolScopes(t *testing.T) {
	ix := NewIndex()
	ix.Upsert(student("s1", "school-1", 100, 1, tp(day(1))))
	ix.Upsert(student("s2", "school-1", 200, 1, tp(day(1))))
	ix.Upsert(student("s3", "school-2", 150, 1, tp(day(1))))
	ix.Upsert(models.Actor{ID: "school-1", Kind: models.KindSchool, Name: "One", Balance: 300})
	ix.Upsert(models.Actor{ID: "school-2", Kind: models.KindSchool, Name: "Two", Balance: 150})

	assertOrder(t, ix.TopStudentsOfSchool("school-1", 10), "s2", "s1")
	assertOrder(t, ix.TopSchools(10), "school-1", "school-2")

	// Students never appear on the schools board and vice versa.
	if r, _ := ix.SchoolRank("s1"); r != 0 {
		t.Errorf("student ranked on schools board: %d", r)
	}

	if r, err := ix.SchoolStudentRank("school-1", "s1"); err != nil || r != 2 {
		t.Errorf("SchoolStudentRank = %d, %v, want 2", r, err)
	}
	if _, err := ix.SchoolStudentRank("school-2", "s1"); err != ErrUnranked {
		t.Errorf("cross-school rank lookup error = %v, want ErrUnranked", err)
	}
}

func TestSchoolTransferLeavesOldBoard(t *testing.T) {
	ix := NewIndex()
	ix.Upsert(student("s1", "school-1", 100, 1, tp(day(1))))

	ix.Upsert(student("s1", "school-2", 100, 1, tp(day(1))))

	if got := ix.TopStudentsOfSchool("school-1", 10); len(got) != 0 {
		t.Errorf("old school board still lists the student: %v", ids(got))
	}
	assertOrder(t, ix.TopStudentsOfSchool("school-2", 10), "s1")
}

func TestRankUnknownActor(t *testing.T) {
	ix := NewIndex()
	if _, err := ix.StudentRank("ghost"); err != ErrUnranked {
		t.Errorf("StudentRank(ghost) error = %v, want ErrUnranked", err)
	}
	if _, err := ix.SchoolRank("ghost"); err != ErrUnranked {
		t.Errorf("SchoolRank(ghost) error = %v, want ErrUnranked", err)
	}
}
