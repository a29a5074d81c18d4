package shared_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kodomo/apps/shared"
	"github.com/trezcool/kodomo/core"
	"github.com/trezcool/kodomo/core/academicyear"
	"github.com/trezcool/kodomo/core/assignment"
	"github.com/trezcool/kodomo/testutil"
)

func TestNewServices_seedFile(t *testing.T) {
	ctx := context.Background()
	conf := testutil.NewConfig()
	conf.Database.SeedFile = filepath.Join("..", "..", "config", "seed.example.json")

	svcs, err := shared.NewServices(conf, testutil.NewLogger(conf), nil, false)
	require.NoError(t, err)
	defer svcs.Close()

	children, err := svcs.Directory.ListChildren(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, children, 4)

	// a seeded nursery is usable right away
	_, err = svcs.Years.Create(ctx, academicyear.NewAcademicYear{
		NurseryID: 1,
		Year:      2024,
		StartDate: core.NewDate(2024, time.April, 1),
		EndDate:   core.NewDate(2025, time.March, 31),
	})
	require.NoError(t, err)
	a, err := svcs.Assignments.AssignChild(ctx, assignment.AssignChildToClassRequest{
		NurseryID: 1, AcademicYear: 2024, ChildID: 1, ClassID: "momo",
	})
	require.NoError(t, err)
	assert.Equal(t, "momo", a.ClassID)
}

func TestNewServices_errors(t *testing.T) {
	tests := []struct {
		name    string
		tweak   func(conf *core.Config)
		wantErr string
	}{
		{
			name:    "missing seed file",
			tweak:   func(conf *core.Config) { conf.Database.SeedFile = filepath.Join(t.TempDir(), "nope.json") },
			wantErr: "opening seed file",
		},
		{
			name:    "unknown engine",
			tweak:   func(conf *core.Config) { conf.Database.Engine = "sqlite" },
			wantErr: `unknown database engine "sqlite"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := testutil.NewConfig()
			tt.tweak(conf)
			_, err := shared.NewServices(conf, testutil.NewLogger(conf), nil, false)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
