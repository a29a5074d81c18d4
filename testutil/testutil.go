// Package testutil provides fixtures shared by the tests of the app packages.
package testutil

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trezcool/kodomo/apps/shared"
	"github.com/trezcool/kodomo/core"
	"github.com/trezcool/kodomo/core/academicyear"
	"github.com/trezcool/kodomo/core/assignment"
	"github.com/trezcool/kodomo/core/nursery"
	emailsvc "github.com/trezcool/kodomo/services/email"
	logsvc "github.com/trezcool/kodomo/services/logger"
	inmemdb "github.com/trezcool/kodomo/storage/database/inmem"
)

// NewConfig returns the configuration used by tests: memory engine, no request logs.
func NewConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		TestMode:         true,
		AppName:          "Kodomo",
		Build:            "test",
		SecretKey:        "secret",
		DefaultFromEmail: "noreply@kodomo.test",
		FrontendBaseURL:  "http://localhost:3000",
		Server: core.ServerConfig{
			Host:               ":0",
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
			DisableReqLogs:     true,
		},
		Database: core.DatabaseConfig{Engine: core.EngineMemory},
	}
}

// NewLogger returns a logger that reports nothing.
func NewLogger(conf *core.Config) core.Logger {
	local := logrus.New()
	local.SetOutput(io.Discard)
	logger := logsvc.NewRollbarLogger(local, conf)
	logger.Enable(false)
	return logger
}

// NewServices builds the app services over a fresh in-memory database. E-mails are sent synchronously.
func NewServices(t *testing.T, conf *core.Config) *shared.Services {
	t.Helper()
	logger := NewLogger(conf)
	svcs, err := shared.NewServices(conf, logger, emailsvc.NewConsoleServiceMock(conf, logger), false)
	if err != nil {
		t.Fatalf("NewServices(): %v", err)
	}
	return svcs
}

// Year returns an April to March academic year starting in the given year.
func Year(nurseryID, year int, status academicyear.Status) academicyear.AcademicYear {
	now := time.Now().UTC()
	return academicyear.AcademicYear{
		NurseryID: nurseryID,
		Year:      year,
		StartDate: core.NewDate(year, time.April, 1),
		EndDate:   core.NewDate(year+1, time.March, 31),
		IsCurrent: status == academicyear.StatusCurrent,
		IsFuture:  status == academicyear.StatusFuture,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CreateYears saves years without any business rule check.
func CreateYears(t *testing.T, db *inmemdb.DB, years ...academicyear.AcademicYear) {
	t.Helper()
	repo := inmemdb.NewAcademicYearRepository(db)
	for _, ay := range years {
		if _, err := repo.Create(context.Background(), ay, 0); err != nil {
			t.Fatalf("CreateYears(): %v", err)
		}
	}
}

func Child(nurseryID, id int, name string) nursery.Child {
	return nursery.Child{
		NurseryID: nurseryID,
		ID:        id,
		Name:      name,
		BirthDate: core.NewDate(2020, time.May, 5),
		IsActive:  true,
	}
}

func Staff(nurseryID, id int, name string) nursery.Staff {
	return nursery.Staff{
		NurseryID: nurseryID,
		ID:        id,
		Name:      name,
		Position:  "teacher",
		IsActive:  true,
	}
}

func Class(nurseryID, year int, id string, maxCapacity int) nursery.Class {
	return nursery.Class{
		NurseryID:    nurseryID,
		AcademicYear: year,
		ID:           id,
		Name:         id,
		AgeGroup:     3,
		MaxCapacity:  maxCapacity,
		IsActive:     true,
	}
}

// AssignChildren assigns the children to a class without any business rule check.
func AssignChildren(t *testing.T, db *inmemdb.DB, nurseryID, year int, classID string, childIDs ...int) {
	t.Helper()
	as := make([]assignment.ChildAssignment, 0, len(childIDs))
	for _, id := range childIDs {
		as = append(as, assignment.ChildAssignment{
			AcademicYear: year,
			NurseryID:    nurseryID,
			ChildID:      id,
			ClassID:      classID,
			AssignedAt:   time.Now().UTC(),
		})
	}
	if _, err := inmemdb.NewAssignmentRepository(db).UpsertChildAssignments(context.Background(), as...); err != nil {
		t.Fatalf("AssignChildren(): %v", err)
	}
}

// AssignStaff assigns a staff member to a class without any business rule check.
func AssignStaff(t *testing.T, db *inmemdb.DB, nurseryID, year, staffID int, classID string, role assignment.StaffRole) {
	t.Helper()
	_, err := inmemdb.NewAssignmentRepository(db).UpsertStaffAssignment(context.Background(), assignment.StaffAssignment{
		AcademicYear: year,
		NurseryID:    nurseryID,
		StaffID:      staffID,
		ClassID:      classID,
		Role:         role,
		AssignedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("AssignStaff(): %v", err)
	}
}
