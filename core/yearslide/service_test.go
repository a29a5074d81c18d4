package yearslide_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kodomo/apps/shared"
	"github.com/trezcool/kodomo/core"
	"github.com/trezcool/kodomo/core/academicyear"
	"github.com/trezcool/kodomo/core/assignment"
	"github.com/trezcool/kodomo/core/yearslide"
	appfs "github.com/trezcool/kodomo/fs"
	emailsvc "github.com/trezcool/kodomo/services/email"
	inmemdb "github.com/trezcool/kodomo/storage/database/inmem"
	"github.com/trezcool/kodomo/testutil"
)

const nurseryID = 1

// setup registers 2024 as the current year & 2025 as the future one, with child 42 in class "sakura" for 2025.
func setup(t *testing.T, conf *core.Config) *shared.Services {
	svcs := testutil.NewServices(t, conf)
	db := svcs.Memory

	testutil.CreateYears(t, db,
		testutil.Year(nurseryID, 2024, academicyear.StatusCurrent),
		testutil.Year(nurseryID, 2025, academicyear.StatusFuture),
	)
	db.SaveChildren(testutil.Child(nurseryID, 42, "Hana"))
	db.SaveStaff(testutil.Staff(nurseryID, 7, "Yuki"))
	db.SaveClasses(
		testutil.Class(nurseryID, 2024, "momo", 20),
		testutil.Class(nurseryID, 2025, "sakura", 20),
	)
	testutil.AssignChildren(t, db, nurseryID, 2024, "momo", 42)
	testutil.AssignChildren(t, db, nurseryID, 2025, "sakura", 42)
	testutil.AssignStaff(t, db, nurseryID, 2025, 7, "sakura", assignment.RoleMainTeacher)
	return svcs
}

func currentYear(t *testing.T, svcs *shared.Services) int {
	t.Helper()
	ay, err := svcs.Years.GetCurrent(context.Background(), nurseryID)
	require.NoError(t, err)
	return ay.Year
}

func TestService_Preview(t *testing.T) {
	ctx := context.Background()
	svcs := setup(t, testutil.NewConfig())

	p, err := svcs.Slides.Preview(ctx, nurseryID, 2025)
	require.NoError(t, err)

	assert.Equal(t, 2024, p.CurrentYear)
	assert.Equal(t, 2025, p.TargetYear)
	assert.Equal(t, 1, p.AffectedChildrenCount)
	assert.Equal(t, 1, p.AffectedStaffCount)
	assert.Empty(t, p.UnassignedChildren)
	assert.Empty(t, p.UnassignedStaff)
	assert.Empty(t, p.Warnings)
	require.Len(t, p.ClassSummaries, 1)
	assert.Equal(t, "sakura", p.ClassSummaries[0].ClassID)
	assert.Equal(t, []int{42}, p.ClassSummaries[0].ChildIDs)
	assert.Equal(t, []int{7}, p.ClassSummaries[0].StaffIDs)
	assert.False(t, p.ClassSummaries[0].IsOverCapacity)

	// previews never change anything
	assert.Equal(t, 2024, currentYear(t, svcs))
}

type snapshot struct {
	years    []academicyear.AcademicYear
	children map[int][]assignment.ClassWithChildren
	staff    map[int][]assignment.ClassStaff
	history  []yearslide.Result
}

func takeSnapshot(t *testing.T, svcs *shared.Services) snapshot {
	t.Helper()
	ctx := context.Background()
	snap := snapshot{
		children: make(map[int][]assignment.ClassWithChildren),
		staff:    make(map[int][]assignment.ClassStaff),
	}

	var err error
	snap.years, err = svcs.Years.List(ctx, nurseryID)
	require.NoError(t, err)
	for _, ay := range snap.years {
		snap.children[ay.Year], err = svcs.Assignments.ClassesWithChildren(ctx, nurseryID, ay.Year)
		require.NoError(t, err)
		snap.staff[ay.Year], err = svcs.Assignments.ClassStaffAssignments(ctx, nurseryID, ay.Year)
		require.NoError(t, err)
	}
	snap.history, err = svcs.Slides.History(ctx, nurseryID)
	require.NoError(t, err)
	return snap
}

func TestService_Preview_repeated(t *testing.T) {
	ctx := context.Background()
	svcs := setup(t, testutil.NewConfig())
	svcs.Memory.SaveChildren(testutil.Child(nurseryID, 43, "Sora"))
	svcs.Memory.SaveStaff(testutil.Staff(nurseryID, 8, "Kenji"))
	testutil.AssignChildren(t, svcs.Memory, nurseryID, 2024, "momo", 43)

	before := takeSnapshot(t, svcs)
	first, err := svcs.Slides.Preview(ctx, nurseryID, 2025)
	require.NoError(t, err)
	require.NotEmpty(t, first.Warnings)

	for i := 0; i < 3; i++ {
		again, err := svcs.Slides.Preview(ctx, nurseryID, 2025)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, before, takeSnapshot(t, svcs))
}

func TestService_Preview_errors(t *testing.T) {
	ctx := context.Background()
	svcs := setup(t, testutil.NewConfig())
	empty := testutil.NewServices(t, testutil.NewConfig())

	tests := []struct {
		name       string
		svc        *yearslide.Service
		targetYear int
		wantCode   core.ErrorCode
	}{
		{name: "no current year", svc: empty.Slides, targetYear: 2025, wantCode: core.CodeNotConfigured},
		{name: "target is the current year", svc: svcs.Slides, targetYear: 2024, wantCode: core.CodeInvalidState},
		{name: "target is in the past", svc: svcs.Slides, targetYear: 2020, wantCode: core.CodeInvalidState},
		{name: "target is not the future year", svc: svcs.Slides, targetYear: 2026, wantCode: core.CodeInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.Preview(ctx, nurseryID, tt.targetYear)
			if code, _ := core.ErrorCodeOf(err); code != tt.wantCode {
				t.Errorf("Preview() error = %v, wantCode %v", err, tt.wantCode)
			}
		})
	}
}

func TestService_Preview_warnings(t *testing.T) {
	ctx := context.Background()
	svcs := setup(t, testutil.NewConfig())
	db := svcs.Memory

	withdrawn := testutil.Child(nurseryID, 43, "Ren")
	withdrawn.IsActive = false
	db.SaveChildren(testutil.Child(nurseryID, 44, "Sora"), withdrawn)
	db.SaveStaff(testutil.Staff(nurseryID, 8, "Aoi"))
	db.SaveClasses(testutil.Class(nurseryID, 2025, "kiku", 0))
	testutil.AssignChildren(t, db, nurseryID, 2024, "momo", 44)
	testutil.AssignChildren(t, db, nurseryID, 2025, "kiku", 43)

	p, err := svcs.Slides.Preview(ctx, nurseryID, 2025)
	require.NoError(t, err)

	assert.Equal(t, 1, p.AffectedChildrenCount)
	require.Len(t, p.UnassignedChildren, 1)
	assert.Equal(t, 44, p.UnassignedChildren[0].ChildID)
	assert.Equal(t, "momo", p.UnassignedChildren[0].CurrentClassID.String)
	require.Len(t, p.UnassignedStaff, 1)
	assert.Equal(t, 8, p.UnassignedStaff[0].StaffID)
	assert.Equal(t, []string{
		"1 children have no class assigned for 2025",
		"1 staff members have no class assigned for 2025",
		"1 withdrawn children still hold a class assignment for 2025 and will not be promoted",
		"class kiku (kiku) has a capacity of 0",
	}, p.Warnings)
}

func TestService_Execute(t *testing.T) {
	ctx := context.Background()
	svcs := setup(t, testutil.NewConfig())

	res, err := svcs.Slides.Execute(ctx, yearslide.Request{
		NurseryID:        nurseryID,
		TargetYear:       2025,
		Confirmed:        true,
		ExecutedByUserID: 1,
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 2024, res.PreviousYear)
	assert.Equal(t, 2025, res.NewYear)
	assert.Equal(t, 1, res.SlidedChildrenCount)
	assert.Equal(t, 1, res.SlidedStaffCount)
	assert.False(t, res.ErrorMessage.Valid)
	assert.Equal(t, []string{"academic year 2025 is now the current year; 2024 is closed"}, res.Messages)

	// 2025 is current, 2024 is past & no future year is left
	years, err := svcs.Years.List(ctx, nurseryID)
	require.NoError(t, err)
	require.Len(t, years, 2)
	assert.Equal(t, academicyear.StatusPast, years[0].Status())
	assert.Equal(t, academicyear.StatusCurrent, years[1].Status())
	_, err = svcs.Years.GetFuture(ctx, nurseryID)
	assert.True(t, core.HasErrorCode(err, core.CodeNotFound))

	// child 42 is in sakura for the new current year
	classes, err := svcs.Assignments.ClassesWithChildren(ctx, nurseryID, currentYear(t, svcs))
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "sakura", classes[0].ClassID)
	require.Len(t, classes[0].Children, 1)
	assert.Equal(t, 42, classes[0].Children[0].ChildID)

	logs, err := svcs.Slides.History(ctx, nurseryID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, res.ID, logs[0].ID)

	// no future year anymore
	_, err = svcs.Slides.Execute(ctx, yearslide.Request{NurseryID: nurseryID, TargetYear: 2025, Confirmed: true, ExecutedByUserID: 1})
	assert.True(t, core.HasErrorCode(err, core.CodeInvalidState), "second slide: %v", err)
	assert.Equal(t, 2025, currentYear(t, svcs))
}

func TestService_Execute_overCapacity(t *testing.T) {
	ctx := context.Background()
	svcs := setup(t, testutil.NewConfig())
	db := svcs.Memory

	ids := make([]int, 0, 24)
	for id := 100; id < 124; id++ {
		db.SaveChildren(testutil.Child(nurseryID, id, "child"))
		ids = append(ids, id)
	}
	testutil.AssignChildren(t, db, nurseryID, 2025, "sakura", ids...)

	p, err := svcs.Slides.Preview(ctx, nurseryID, 2025)
	require.NoError(t, err)
	assert.Equal(t, 25, p.AffectedChildrenCount)
	require.Len(t, p.ClassSummaries, 1)
	assert.True(t, p.ClassSummaries[0].IsOverCapacity)
	assert.Contains(t, p.Warnings, "class sakura (sakura) exceeds its capacity: 25 children for 20 places")

	// capacity is informational only
	res, err := svcs.Slides.Execute(ctx, yearslide.Request{NurseryID: nurseryID, TargetYear: 2025, Confirmed: true, ExecutedByUserID: 1})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 25, res.SlidedChildrenCount)
}

func TestService_Execute_rejected(t *testing.T) {
	ctx := context.Background()
	svcs := setup(t, testutil.NewConfig())

	tests := []struct {
		name     string
		req      yearslide.Request
		wantCode core.ErrorCode
	}{
		{
			name:     "not confirmed",
			req:      yearslide.Request{NurseryID: nurseryID, TargetYear: 2025, ExecutedByUserID: 1},
			wantCode: core.CodePreconditionFailed,
		},
		{
			name:     "wrong target",
			req:      yearslide.Request{NurseryID: nurseryID, TargetYear: 2026, Confirmed: true, ExecutedByUserID: 1},
			wantCode: core.CodeInvalidState,
		},
		{
			name:     "unknown nursery",
			req:      yearslide.Request{NurseryID: 99, TargetYear: 2025, Confirmed: true, ExecutedByUserID: 1},
			wantCode: core.CodeNotConfigured,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svcs.Slides.Execute(ctx, tt.req)
			if code, _ := core.ErrorCodeOf(err); code != tt.wantCode {
				t.Fatalf("Execute() error = %v, wantCode %v", err, tt.wantCode)
			}
			assert.False(t, res.Success)
			assert.Equal(t, err.Error(), res.ErrorMessage.String)
			assert.Equal(t, 2024, currentYear(t, svcs))
		})
	}

	// rejected attempts are kept in the history, unconfirmed ones leave no trace
	logs, err := svcs.Slides.History(ctx, nurseryID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.Equal(t, 2026, logs[0].NewYear)
	assert.Equal(t, 2024, logs[0].PreviousYear)
}

var errDisk = errors.New("disk full")

// failingStore fails every slide when the audit log is written, i.e. after the year flags were changed.
type failingStore struct {
	yearslide.Store
}

func (s failingStore) Slide(ctx context.Context, nurseryID int, fn func(tx yearslide.Tx) error) error {
	return s.Store.Slide(ctx, nurseryID, func(tx yearslide.Tx) error {
		return fn(failingTx{Tx: tx})
	})
}

type failingTx struct {
	yearslide.Tx
}

func (tx failingTx) InsertLog(context.Context, yearslide.Result) error {
	return errDisk
}

func TestService_Execute_rollback(t *testing.T) {
	ctx := context.Background()
	conf := testutil.NewConfig()
	svcs := setup(t, conf)
	db := svcs.Memory

	svc := yearslide.NewService(
		svcs.Years,
		svcs.Directory,
		inmemdb.NewAssignmentRepository(db),
		failingStore{Store: inmemdb.NewYearSlideStore(db)},
		emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf)),
		testutil.NewLogger(conf),
		conf,
	)

	res, err := svc.Execute(ctx, yearslide.Request{NurseryID: nurseryID, TargetYear: 2025, Confirmed: true, ExecutedByUserID: 1})
	require.Error(t, err)
	assert.Equal(t, errDisk, errors.Cause(err))
	_, isStateErr := core.ErrorCodeOf(err)
	assert.False(t, isStateErr)

	assert.False(t, res.Success)
	assert.Equal(t, "the year slide failed; no changes were applied", res.ErrorMessage.String)
	assert.Zero(t, res.SlidedChildrenCount)

	// nothing changed
	assert.Equal(t, 2024, currentYear(t, svcs))
	future, err := svcs.Years.GetFuture(ctx, nurseryID)
	require.NoError(t, err)
	assert.Equal(t, 2025, future.Year)
}

func TestService_Execute_report(t *testing.T) {
	conf := testutil.NewConfig()
	conf.YearSlide.ReportRecipients = []string{"Director <director@kodomo.test>", "not an address"}
	core.ParseEmailTemplates(appfs.FS, testutil.NewLogger(conf), conf)
	svcs := setup(t, conf)
	emailsvc.ResetSentMessages()

	res, err := svcs.Slides.Execute(context.Background(), yearslide.Request{
		NurseryID: nurseryID, TargetYear: 2025, Confirmed: true, ExecutedByUserID: 1,
	})
	require.NoError(t, err)

	sent := emailsvc.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	require.Len(t, msg.To, 1)
	assert.Equal(t, "director@kodomo.test", msg.To[0].Address)
	assert.Equal(t, "Academic year 2025 has started", msg.Subject)
	assert.True(t, strings.HasPrefix(msg.TextContent, "The academic year 2025 is now the current year (previously 2024)."))
	assert.Contains(t, msg.TextContent, "Children promoted: 1")
	assert.Contains(t, msg.HTMLContent, "2025")
	assert.Equal(t, "year-slide", msg.Category)
	assert.Equal(t, map[string]string{
		"slideId": res.ID.String(), "nurseryId": "1", "previousYear": "2024", "newYear": "2025",
	}, msg.Tags)
}

func TestService_metrics(t *testing.T) {
	svcs := setup(t, testutil.NewConfig())
	_, err := svcs.Slides.Execute(context.Background(), yearslide.Request{
		NurseryID: nurseryID, TargetYear: 2025, Confirmed: true, ExecutedByUserID: 1,
	})
	require.NoError(t, err)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	var successes float64
	for _, mf := range families {
		if mf.GetName() != "kodomo_year_slide_execute_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == "success" {
					successes += m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.GreaterOrEqual(t, successes, float64(1))
}
