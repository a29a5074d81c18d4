package assignment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kodomo/core"
	"github.com/trezcool/kodomo/core/academicyear"
	"github.com/trezcool/kodomo/core/nursery"
)

type (
	Repository interface {
		ListChildAssignments(ctx context.Context, nurseryID, year int) ([]ChildAssignment, error)
		ListStaffAssignments(ctx context.Context, nurseryID, year int) ([]StaffAssignment, error)
		// UpsertChildAssignments saves all assignments or none of them.
		UpsertChildAssignments(ctx context.Context, assignments ...ChildAssignment) ([]ChildAssignment, error)
		DeleteChildAssignment(ctx context.Context, nurseryID, year, childID int) (bool, error)
		UpsertStaffAssignment(ctx context.Context, a StaffAssignment) (StaffAssignment, error)
		DeleteStaffAssignment(ctx context.Context, nurseryID, year, staffID int, classID string) (bool, error)
	}

	YearGetter interface {
		Get(ctx context.Context, nurseryID, year int) (academicyear.AcademicYear, error)
	}
)

type Service struct {
	years YearGetter
	dir   nursery.Directory
	repo  Repository
	now   func() time.Time
}

func NewService(years YearGetter, dir nursery.Directory, repo Repository) *Service {
	return &Service{years: years, dir: dir, repo: repo, now: time.Now}
}

// editableYear makes sure assignments of the given year may still change. Past years are history.
func (svc *Service) editableYear(ctx context.Context, nurseryID, year int) error {
	ay, err := svc.years.Get(ctx, nurseryID, year)
	if err != nil {
		return err
	}
	if ay.Status() == academicyear.StatusPast {
		return core.NewStateError(core.CodeInvalidState, "academic year %d is closed; its assignments can no longer change", year)
	}
	return nil
}

func (svc *Service) activeChild(ctx context.Context, nurseryID, childID int, field string) (nursery.Child, error) {
	child, err := svc.dir.GetChild(ctx, nurseryID, childID)
	if err != nil {
		if errors.Cause(err) == nursery.ErrNotFound {
			return child, core.NewValidationError(nil, core.FieldError{Field: field, Error: fmt.Sprintf("child %d not found", childID)})
		}
		return child, errors.Wrap(err, "getting child")
	}
	if !child.IsActive {
		return child, core.NewValidationError(nil, core.FieldError{Field: field, Error: fmt.Sprintf("child %d is withdrawn", childID)})
	}
	return child, nil
}

func (svc *Service) activeStaff(ctx context.Context, nurseryID, staffID int) (nursery.Staff, error) {
	staff, err := svc.dir.GetStaff(ctx, nurseryID, staffID)
	if err != nil {
		if errors.Cause(err) == nursery.ErrNotFound {
			return staff, core.NewValidationError(nil, core.FieldError{Field: "staffId", Error: fmt.Sprintf("staff member %d not found", staffID)})
		}
		return staff, errors.Wrap(err, "getting staff")
	}
	if !staff.IsActive {
		return staff, core.NewValidationError(nil, core.FieldError{Field: "staffId", Error: fmt.Sprintf("staff member %d is inactive", staffID)})
	}
	return staff, nil
}

func (svc *Service) activeClass(ctx context.Context, nurseryID, year int, classID string) (nursery.Class, error) {
	class, err := svc.dir.GetClass(ctx, nurseryID, year, classID)
	if err != nil {
		if errors.Cause(err) == nursery.ErrNotFound {
			return class, core.NewValidationError(nil, core.FieldError{
				Field: "classId",
				Error: fmt.Sprintf("class %q does not exist in academic year %d", classID, year),
			})
		}
		return class, errors.Wrap(err, "getting class")
	}
	if !class.IsActive {
		return class, core.NewValidationError(nil, core.FieldError{Field: "classId", Error: fmt.Sprintf("class %q is inactive", classID)})
	}
	return class, nil
}

// AssignChild puts a child in a class for the given year, replacing any previous class of that year.
func (svc *Service) AssignChild(ctx context.Context, req AssignChildToClassRequest) (ChildAssignment, error) {
	if err := svc.editableYear(ctx, req.NurseryID, req.AcademicYear); err != nil {
		return ChildAssignment{}, err
	}
	if _, err := svc.activeChild(ctx, req.NurseryID, req.ChildID, "childId"); err != nil {
		return ChildAssignment{}, err
	}
	if _, err := svc.activeClass(ctx, req.NurseryID, req.AcademicYear, req.ClassID); err != nil {
		return ChildAssignment{}, err
	}

	saved, err := svc.repo.UpsertChildAssignments(ctx, ChildAssignment{
		AcademicYear: req.AcademicYear,
		NurseryID:    req.NurseryID,
		ChildID:      req.ChildID,
		ClassID:      req.ClassID,
		AssignedAt:   svc.now().UTC(),
		Notes:        req.Notes,
	})
	if err != nil {
		return ChildAssignment{}, errors.Wrap(err, "saving child assignment")
	}
	return saved[0], nil
}

// BulkAssignChildren puts several children in the same class. Nothing is saved if one of them is invalid.
func (svc *Service) BulkAssignChildren(ctx context.Context, req BulkAssignChildrenRequest) ([]ChildAssignment, error) {
	if err := svc.editableYear(ctx, req.NurseryID, req.AcademicYear); err != nil {
		return nil, err
	}
	if _, err := svc.activeClass(ctx, req.NurseryID, req.AcademicYear, req.ClassID); err != nil {
		return nil, err
	}

	now := svc.now().UTC()
	seen := make(map[int]bool, len(req.ChildIDs))
	assignments := make([]ChildAssignment, 0, len(req.ChildIDs))
	var flds []core.FieldError
	for i, childID := range req.ChildIDs {
		if seen[childID] {
			continue
		}
		seen[childID] = true
		if _, err := svc.activeChild(ctx, req.NurseryID, childID, fmt.Sprintf("childIds[%d]", i)); err != nil {
			if vErr, ok := errors.Cause(err).(*core.ValidationError); ok {
				flds = append(flds, vErr.Fields...)
				continue
			}
			return nil, err
		}
		assignments = append(assignments, ChildAssignment{
			AcademicYear: req.AcademicYear,
			NurseryID:    req.NurseryID,
			ChildID:      childID,
			ClassID:      req.ClassID,
			AssignedAt:   now,
			Notes:        req.Notes,
		})
	}
	if len(flds) > 0 {
		return nil, core.NewValidationError(nil, flds...)
	}

	saved, err := svc.repo.UpsertChildAssignments(ctx, assignments...)
	if err != nil {
		return nil, errors.Wrap(err, "saving child assignments")
	}
	return saved, nil
}

// UnassignChild removes the class of a child for the given year. Removing a missing assignment is a no-op.
func (svc *Service) UnassignChild(ctx context.Context, nurseryID, year, childID int) (bool, error) {
	if err := svc.editableYear(ctx, nurseryID, year); err != nil {
		return false, err
	}
	removed, err := svc.repo.DeleteChildAssignment(ctx, nurseryID, year, childID)
	if err != nil {
		return false, errors.Wrap(err, "deleting child assignment")
	}
	return removed, nil
}

// AssignStaff adds a staff member to a class for the given year. A staff member may serve several classes.
func (svc *Service) AssignStaff(ctx context.Context, req AssignStaffToClassRequest) (StaffAssignment, error) {
	if !req.AssignmentRole.IsValid() {
		return StaffAssignment{}, core.NewValidationError(nil, core.FieldError{Field: "assignmentRole", Error: staffRoleText})
	}
	if err := svc.editableYear(ctx, req.NurseryID, req.AcademicYear); err != nil {
		return StaffAssignment{}, err
	}
	if _, err := svc.activeStaff(ctx, req.NurseryID, req.StaffID); err != nil {
		return StaffAssignment{}, err
	}
	if _, err := svc.activeClass(ctx, req.NurseryID, req.AcademicYear, req.ClassID); err != nil {
		return StaffAssignment{}, err
	}

	a := StaffAssignment{
		AcademicYear: req.AcademicYear,
		NurseryID:    req.NurseryID,
		StaffID:      req.StaffID,
		ClassID:      req.ClassID,
		Role:         req.AssignmentRole,
		Notes:        req.Notes,
		AssignedAt:   svc.now().UTC(),
	}
	if req.AssignedByUserID > 0 {
		a.AssignedByUserID = null.IntFrom(req.AssignedByUserID)
	}
	saved, err := svc.repo.UpsertStaffAssignment(ctx, a)
	if err != nil {
		return StaffAssignment{}, errors.Wrap(err, "saving staff assignment")
	}
	return saved, nil
}

func (svc *Service) UnassignStaff(ctx context.Context, req UnassignStaffFromClassRequest) (bool, error) {
	if err := svc.editableYear(ctx, req.NurseryID, req.AcademicYear); err != nil {
		return false, err
	}
	removed, err := svc.repo.DeleteStaffAssignment(ctx, req.NurseryID, req.AcademicYear, req.StaffID, req.ClassID)
	if err != nil {
		return false, errors.Wrap(err, "deleting staff assignment")
	}
	return removed, nil
}

// ClassesWithChildren lists the classes of a year with their active children.
// Inactive classes are only listed while they still hold children.
func (svc *Service) ClassesWithChildren(ctx context.Context, nurseryID, year int) ([]ClassWithChildren, error) {
	if _, err := svc.years.Get(ctx, nurseryID, year); err != nil {
		return nil, err
	}
	classes, err := svc.dir.ListClasses(ctx, nurseryID, year)
	if err != nil {
		return nil, errors.Wrap(err, "listing classes")
	}
	children, err := svc.dir.ListChildren(ctx, nurseryID)
	if err != nil {
		return nil, errors.Wrap(err, "listing children")
	}
	assignments, err := svc.repo.ListChildAssignments(ctx, nurseryID, year)
	if err != nil {
		return nil, errors.Wrap(err, "listing child assignments")
	}

	childIdx := nursery.ChildrenByID(children)
	byClass := make(map[string][]AssignedChild)
	for _, a := range assignments {
		child, ok := childIdx[a.ChildID]
		if !ok || !child.IsActive {
			continue
		}
		byClass[a.ClassID] = append(byClass[a.ClassID], AssignedChild{
			ChildID:    child.ID,
			Name:       child.Name,
			BirthDate:  child.BirthDate,
			AssignedAt: a.AssignedAt,
			Notes:      a.Notes,
		})
	}

	sortClasses(classes)
	res := make([]ClassWithChildren, 0, len(classes))
	for _, class := range classes {
		members := byClass[class.ID]
		if !class.IsActive && len(members) == 0 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			if members[i].Name != members[j].Name {
				return members[i].Name < members[j].Name
			}
			return members[i].ChildID < members[j].ChildID
		})
		if members == nil {
			members = []AssignedChild{}
		}
		res = append(res, ClassWithChildren{
			ClassID:        class.ID,
			ClassName:      class.Name,
			AgeGroup:       class.AgeGroup,
			MaxCapacity:    class.MaxCapacity,
			IsActive:       class.IsActive,
			ChildCount:     len(members),
			IsOverCapacity: len(members) > class.MaxCapacity,
			Children:       members,
		})
	}
	return res, nil
}

// AvailableChildren lists the active children who have no class for the given year yet.
func (svc *Service) AvailableChildren(ctx context.Context, nurseryID, year int) ([]AvailableChild, error) {
	if _, err := svc.years.Get(ctx, nurseryID, year); err != nil {
		return nil, err
	}
	children, err := svc.dir.ListChildren(ctx, nurseryID)
	if err != nil {
		return nil, errors.Wrap(err, "listing children")
	}
	assignments, err := svc.repo.ListChildAssignments(ctx, nurseryID, year)
	if err != nil {
		return nil, errors.Wrap(err, "listing child assignments")
	}
	previous, err := svc.repo.ListChildAssignments(ctx, nurseryID, year-1)
	if err != nil {
		return nil, errors.Wrap(err, "listing previous child assignments")
	}

	assigned := make(map[int]bool, len(assignments))
	for _, a := range assignments {
		assigned[a.ChildID] = true
	}
	prevClass := make(map[int]string, len(previous))
	for _, a := range previous {
		prevClass[a.ChildID] = a.ClassID
	}

	res := make([]AvailableChild, 0)
	for _, child := range children {
		if !child.IsActive || assigned[child.ID] {
			continue
		}
		ac := AvailableChild{ChildID: child.ID, Name: child.Name, BirthDate: child.BirthDate}
		if classID, ok := prevClass[child.ID]; ok {
			ac.PreviousClassID = null.StringFrom(classID)
		}
		res = append(res, ac)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].ChildID < res[j].ChildID
	})
	return res, nil
}

// ClassStaffAssignments lists the classes of a year with their active staff, main teachers first.
func (svc *Service) ClassStaffAssignments(ctx context.Context, nurseryID, year int) ([]ClassStaff, error) {
	if _, err := svc.years.Get(ctx, nurseryID, year); err != nil {
		return nil, err
	}
	classes, err := svc.dir.ListClasses(ctx, nurseryID, year)
	if err != nil {
		return nil, errors.Wrap(err, "listing classes")
	}
	staff, err := svc.dir.ListStaff(ctx, nurseryID)
	if err != nil {
		return nil, errors.Wrap(err, "listing staff")
	}
	assignments, err := svc.repo.ListStaffAssignments(ctx, nurseryID, year)
	if err != nil {
		return nil, errors.Wrap(err, "listing staff assignments")
	}

	staffIdx := nursery.StaffByID(staff)
	byClass := make(map[string][]AssignedStaff)
	for _, a := range assignments {
		s, ok := staffIdx[a.StaffID]
		if !ok || !s.IsActive {
			continue
		}
		byClass[a.ClassID] = append(byClass[a.ClassID], AssignedStaff{
			StaffID:        s.ID,
			Name:           s.Name,
			Position:       s.Position,
			AssignmentRole: a.Role,
			Notes:          a.Notes,
			AssignedAt:     a.AssignedAt,
		})
	}

	sortClasses(classes)
	res := make([]ClassStaff, 0, len(classes))
	for _, class := range classes {
		members := byClass[class.ID]
		if !class.IsActive && len(members) == 0 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			pi, pj := members[i].AssignmentRole.priority(), members[j].AssignmentRole.priority()
			if pi != pj {
				return pi < pj
			}
			return members[i].Name < members[j].Name
		})
		if members == nil {
			members = []AssignedStaff{}
		}
		res = append(res, ClassStaff{
			ClassID:   class.ID,
			ClassName: class.Name,
			AgeGroup:  class.AgeGroup,
			IsActive:  class.IsActive,
			Staff:     members,
		})
	}
	return res, nil
}

// AvailableStaff lists the active staff who can still be assigned.
// With a classID, staff already in that class are left out; otherwise staff with any class are left out.
func (svc *Service) AvailableStaff(ctx context.Context, nurseryID, year int, classID string) ([]AvailableStaff, error) {
	if _, err := svc.years.Get(ctx, nurseryID, year); err != nil {
		return nil, err
	}
	staff, err := svc.dir.ListStaff(ctx, nurseryID)
	if err != nil {
		return nil, errors.Wrap(err, "listing staff")
	}
	assignments, err := svc.repo.ListStaffAssignments(ctx, nurseryID, year)
	if err != nil {
		return nil, errors.Wrap(err, "listing staff assignments")
	}

	classesOf := make(map[int][]string)
	for _, a := range assignments {
		classesOf[a.StaffID] = append(classesOf[a.StaffID], a.ClassID)
	}

	res := make([]AvailableStaff, 0)
	for _, s := range staff {
		if !s.IsActive {
			continue
		}
		assigned := classesOf[s.ID]
		if classID == "" && len(assigned) > 0 {
			continue
		}
		if classID != "" && containsString(assigned, classID) {
			continue
		}
		sort.Strings(assigned)
		if assigned == nil {
			assigned = []string{}
		}
		res = append(res, AvailableStaff{StaffID: s.ID, Name: s.Name, Position: s.Position, AssignedClassIDs: assigned})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].StaffID < res[j].StaffID
	})
	return res, nil
}

func sortClasses(classes []nursery.Class) {
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].AgeGroup != classes[j].AgeGroup {
			return classes[i].AgeGroup < classes[j].AgeGroup
		}
		return classes[i].ID < classes[j].ID
	})
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
