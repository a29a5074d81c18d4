package academicyear_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kodomo/apps/shared"
	"github.com/trezcool/kodomo/core"
	"github.com/trezcool/kodomo/core/academicyear"
	"github.com/trezcool/kodomo/testutil"
)

const nurseryID = 1

func bPtr(b bool) *bool { return &b }

func date(year int, month time.Month, day int) core.Date { return core.NewDate(year, month, day) }

func setup(t *testing.T) *shared.Services {
	svcs := testutil.NewServices(t, testutil.NewConfig())
	testutil.CreateYears(t, svcs.Memory, testutil.Year(nurseryID, 2024, academicyear.StatusCurrent))
	svcs.Memory.SaveClasses(
		testutil.Class(nurseryID, 2024, "sakura", 20),
		testutil.Class(nurseryID, 2024, "momo", 15),
	)
	return svcs
}

func TestService_GetCurrent(t *testing.T) {
	ctx := context.Background()
	svcs := setup(t)

	ay, err := svcs.Years.GetCurrent(ctx, nurseryID)
	require.NoError(t, err)
	assert.Equal(t, 2024, ay.Year)
	assert.Equal(t, academicyear.StatusCurrent, ay.Status())

	_, err = svcs.Years.GetCurrent(ctx, 99)
	assert.True(t, core.HasErrorCode(err, core.CodeNotConfigured), "GetCurrent() error = %v", err)

	_, err = svcs.Years.GetFuture(ctx, nurseryID)
	assert.True(t, core.HasErrorCode(err, core.CodeNotFound), "GetFuture() error = %v", err)
}

func TestService_Create_first(t *testing.T) {
	ctx := context.Background()
	svcs := testutil.NewServices(t, testutil.NewConfig())

	tests := []struct {
		name       string
		na         academicyear.NewAcademicYear
		wantCode   core.ErrorCode
		wantFields []string
	}{
		{
			name:     "future before current",
			na:       academicyear.NewAcademicYear{NurseryID: nurseryID, Year: 2024, IsFuture: bPtr(true)},
			wantCode: core.CodeInvalidState,
		},
		{
			name:       "missing fields",
			na:         academicyear.NewAcademicYear{NurseryID: nurseryID},
			wantFields: []string{"year", "startDate", "endDate"},
		},
		{
			name: "end before start",
			na: academicyear.NewAcademicYear{
				NurseryID: nurseryID, Year: 2024, StartDate: date(2024, time.April, 1), EndDate: date(2024, time.March, 31),
			},
			wantFields: []string{"endDate"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svcs.Years.Create(ctx, tt.na)
			require.Error(t, err)
			if tt.wantCode != "" {
				assert.True(t, core.HasErrorCode(err, tt.wantCode), "Create() error = %v, wantCode %v", err, tt.wantCode)
				return
			}
			vErr, ok := err.(*core.ValidationError)
			require.True(t, ok, "Create() error = %v, want a ValidationError", err)
			flds := make([]string, 0, len(vErr.Fields))
			for _, f := range vErr.Fields {
				flds = append(flds, f.Field)
			}
			assert.Equal(t, tt.wantFields, flds)
		})
	}

	ay, err := svcs.Years.Create(ctx, academicyear.NewAcademicYear{
		NurseryID: nurseryID,
		Year:      2024,
		StartDate: date(2024, time.April, 1),
		EndDate:   date(2025, time.March, 31),
	})
	require.NoError(t, err)
	assert.True(t, ay.IsCurrent)
	assert.False(t, ay.IsFuture)
	assert.False(t, ay.CreatedAt.IsZero())
}

func TestService_Create_future(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		svcs := setup(t)
		ay, err := svcs.Years.Create(ctx, academicyear.NewAcademicYear{NurseryID: nurseryID})
		require.NoError(t, err)
		assert.Equal(t, 2025, ay.Year)
		assert.True(t, ay.IsFuture)
		assert.True(t, ay.StartDate.Equal(date(2025, time.April, 1)), "start = %s", ay.StartDate)
		assert.True(t, ay.EndDate.Equal(date(2026, time.March, 31)), "end = %s", ay.EndDate)

		// active classes of the current year are copied
		classes, err := svcs.Directory.ListClasses(ctx, nurseryID, 2025)
		require.NoError(t, err)
		require.Len(t, classes, 2)
		assert.Equal(t, "momo", classes[0].ID)
		assert.Equal(t, 2025, classes[0].AcademicYear)
		assert.Equal(t, "sakura", classes[1].ID)

		_, err = svcs.Years.Create(ctx, academicyear.NewAcademicYear{NurseryID: nurseryID, Year: 2026})
		assert.True(t, core.HasErrorCode(err, core.CodeConflict), "second future year: %v", err)
	})

	t.Run("without classes", func(t *testing.T) {
		svcs := setup(t)
		_, err := svcs.Years.Create(ctx, academicyear.NewAcademicYear{NurseryID: nurseryID, CopyClasses: bPtr(false)})
		require.NoError(t, err)
		classes, err := svcs.Directory.ListClasses(ctx, nurseryID, 2025)
		require.NoError(t, err)
		assert.Empty(t, classes)
	})

	t.Run("rejected", func(t *testing.T) {
		svcs := setup(t)
		tests := []struct {
			name      string
			na        academicyear.NewAcademicYear
			wantCode  core.ErrorCode
			wantField string
		}{
			{name: "not future", na: academicyear.NewAcademicYear{NurseryID: nurseryID, IsFuture: bPtr(false)}, wantCode: core.CodeInvalidState},
			{name: "current year again", na: academicyear.NewAcademicYear{NurseryID: nurseryID, Year: 2024}, wantField: "year"},
			{name: "past year", na: academicyear.NewAcademicYear{NurseryID: nurseryID, Year: 2020}, wantField: "year"},
			{name: "skips a year", na: academicyear.NewAcademicYear{NurseryID: nurseryID, Year: 2027}, wantField: "year"},
			{
				name: "starts in another calendar year",
				na: academicyear.NewAcademicYear{
					NurseryID: nurseryID, StartDate: date(2026, time.April, 1), EndDate: date(2027, time.March, 31),
				},
				wantField: "startDate",
			},
			{
				name: "overlaps the current year",
				na: academicyear.NewAcademicYear{
					NurseryID: nurseryID, StartDate: date(2025, time.March, 1), EndDate: date(2026, time.February, 28),
				},
				wantField: "startDate",
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svcs.Years.Create(ctx, tt.na)
				require.Error(t, err)
				if tt.wantCode != "" {
					assert.True(t, core.HasErrorCode(err, tt.wantCode), "Create() error = %v, wantCode %v", err, tt.wantCode)
					return
				}
				vErr, ok := err.(*core.ValidationError)
				require.True(t, ok, "Create() error = %v, want a ValidationError", err)
				require.NotEmpty(t, vErr.Fields)
				assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
			})
		}

		years, err := svcs.Years.List(ctx, nurseryID)
		require.NoError(t, err)
		assert.Len(t, years, 1)
	})
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	svcs := setup(t)
	_, err := svcs.Years.Create(ctx, academicyear.NewAcademicYear{NurseryID: nurseryID})
	require.NoError(t, err)

	notes := "starts after golden week"
	newStart := date(2025, time.April, 7)
	earlyEnd := date(2025, time.April, 1)
	laterStart, laterEnd := date(2031, time.April, 1), date(2032, time.March, 31)

	tests := []struct {
		name     string
		year     int
		ua       academicyear.UpdateAcademicYear
		wantCode core.ErrorCode
		wantErr  bool
	}{
		{name: "current year is frozen", year: 2024, ua: academicyear.UpdateAcademicYear{Notes: &notes}, wantCode: core.CodeInvalidState},
		{name: "unknown year", year: 2030, ua: academicyear.UpdateAcademicYear{Notes: &notes}, wantCode: core.CodeNotFound},
		{name: "end before start", year: 2025, ua: academicyear.UpdateAcademicYear{EndDate: &earlyEnd}, wantErr: true},
		{
			name:    "moved to another calendar year",
			year:    2025,
			ua:      academicyear.UpdateAcademicYear{StartDate: &laterStart, EndDate: &laterEnd},
			wantErr: true,
		},
		{name: "future year", year: 2025, ua: academicyear.UpdateAcademicYear{StartDate: &newStart, Notes: &notes}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ay, err := svcs.Years.Update(ctx, nurseryID, tt.year, tt.ua)
			switch {
			case tt.wantCode != "":
				assert.True(t, core.HasErrorCode(err, tt.wantCode), "Update() error = %v, wantCode %v", err, tt.wantCode)
			case tt.wantErr:
				_, ok := err.(*core.ValidationError)
				assert.True(t, ok, "Update() error = %v, want a ValidationError", err)
				stored, err := svcs.Years.Get(ctx, nurseryID, tt.year)
				require.NoError(t, err)
				assert.Equal(t, tt.year, stored.StartDate.Year())
			default:
				require.NoError(t, err)
				assert.True(t, ay.StartDate.Equal(newStart))
				assert.Equal(t, notes, ay.Notes.String)
				assert.True(t, ay.IsFuture)
			}
		})
	}
}

func TestNewAcademicYear_Validate(t *testing.T) {
	validate, _ := shared.NewValidator()

	tests := []struct {
		name      string
		na        academicyear.NewAcademicYear
		wantField string
	}{
		{name: "valid", na: academicyear.NewAcademicYear{NurseryID: nurseryID}},
		{name: "no nursery", na: academicyear.NewAcademicYear{}, wantField: "nurseryId"},
		{name: "year out of range", na: academicyear.NewAcademicYear{NurseryID: nurseryID, Year: 42}, wantField: "year"},
		{
			name: "end before start",
			na: academicyear.NewAcademicYear{
				NurseryID: nurseryID, StartDate: date(2025, time.April, 1), EndDate: date(2025, time.April, 1),
			},
			wantField: "endDate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.na.Validate(validate)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			vErrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok, "Validate() error = %v", err)
			assert.Equal(t, tt.wantField, vErrs[0].Field())
		})
	}
}
