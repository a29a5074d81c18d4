package yearslide

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kodomo/core"
	"github.com/trezcool/kodomo/core/academicyear"
	"github.com/trezcool/kodomo/core/assignment"
	"github.com/trezcool/kodomo/core/nursery"
)

const genericFailureMessage = "the year slide failed; no changes were applied"

type (
	YearRegistry interface {
		GetCurrent(ctx context.Context, nurseryID int) (academicyear.AcademicYear, error)
		List(ctx context.Context, nurseryID int) ([]academicyear.AcademicYear, error)
	}

	AssignmentReader interface {
		ListChildAssignments(ctx context.Context, nurseryID, year int) ([]assignment.ChildAssignment, error)
		ListStaffAssignments(ctx context.Context, nurseryID, year int) ([]assignment.StaffAssignment, error)
	}

	// Tx gives access to the data of one nursery within a slide transaction.
	Tx interface {
		// Years returns the academic years of the nursery. Their rows stay locked until the transaction ends.
		Years(ctx context.Context) ([]academicyear.AcademicYear, error)
		SetYearFlags(ctx context.Context, year int, isCurrent, isFuture bool) error
		Children(ctx context.Context) ([]nursery.Child, error)
		Staff(ctx context.Context) ([]nursery.Staff, error)
		ChildAssignments(ctx context.Context, year int) ([]assignment.ChildAssignment, error)
		StaffAssignments(ctx context.Context, year int) ([]assignment.StaffAssignment, error)
		InsertLog(ctx context.Context, res Result) error
	}

	Store interface {
		// Slide runs fn in a single transaction, rolled back when fn returns an error.
		// Concurrent slides of the same nursery are serialized.
		Slide(ctx context.Context, nurseryID int, fn func(tx Tx) error) error
		// SaveLog records an audit entry on its own.
		SaveLog(ctx context.Context, res Result) error
		ListLogs(ctx context.Context, nurseryID int) ([]Result, error)
	}
)

type Service struct {
	years       YearRegistry
	dir         nursery.Directory
	assignments AssignmentReader
	store       Store
	mailSvc     core.EmailService
	logger      core.Logger
	recipients  []mail.Address
	now         func() time.Time
	newID       func() uuid.UUID
}

func NewService(
	years YearRegistry,
	dir nursery.Directory,
	assignments AssignmentReader,
	store Store,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	svc := &Service{
		years:       years,
		dir:         dir,
		assignments: assignments,
		store:       store,
		mailSvc:     mailSvc,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.New,
	}
	for _, rcpt := range conf.YearSlide.ReportRecipients {
		addr, err := mail.ParseAddress(rcpt)
		if err != nil {
			logger.Warn(fmt.Sprintf("yearslide: ignoring invalid report recipient %q", rcpt), err)
			continue
		}
		svc.recipients = append(svc.recipients, *addr)
	}
	return svc
}

// Preview computes what a slide to targetYear would do, without changing anything.
func (svc *Service) Preview(ctx context.Context, nurseryID, targetYear int) (Preview, error) {
	p, err := svc.preview(ctx, nurseryID, targetYear)
	recordPreview(err)
	return p, err
}

func (svc *Service) preview(ctx context.Context, nurseryID, targetYear int) (Preview, error) {
	current, err := svc.years.GetCurrent(ctx, nurseryID)
	if err != nil {
		return Preview{}, err
	}
	years, err := svc.years.List(ctx, nurseryID)
	if err != nil {
		return Preview{}, err
	}
	target, err := checkTarget(findFuture(years), current, targetYear)
	if err != nil {
		return Preview{}, err
	}

	children, err := svc.dir.ListChildren(ctx, nurseryID)
	if err != nil {
		return Preview{}, errors.Wrap(err, "listing children")
	}
	staff, err := svc.dir.ListStaff(ctx, nurseryID)
	if err != nil {
		return Preview{}, errors.Wrap(err, "listing staff")
	}
	classes, err := svc.dir.ListClasses(ctx, nurseryID, target.Year)
	if err != nil {
		return Preview{}, errors.Wrap(err, "listing target year classes")
	}
	currentChildAs, err := svc.assignments.ListChildAssignments(ctx, nurseryID, current.Year)
	if err != nil {
		return Preview{}, errors.Wrap(err, "listing current child assignments")
	}
	futureChildAs, err := svc.assignments.ListChildAssignments(ctx, nurseryID, target.Year)
	if err != nil {
		return Preview{}, errors.Wrap(err, "listing future child assignments")
	}
	futureStaffAs, err := svc.assignments.ListStaffAssignments(ctx, nurseryID, target.Year)
	if err != nil {
		return Preview{}, errors.Wrap(err, "listing future staff assignments")
	}

	counts := countAffected(children, staff, futureChildAs, futureStaffAs)
	p := Preview{
		NurseryID:             nurseryID,
		CurrentYear:           current.Year,
		TargetYear:            target.Year,
		TargetStartDate:       target.StartDate,
		TargetEndDate:         target.EndDate,
		AffectedChildrenCount: counts.children,
		AffectedStaffCount:    counts.staff,
		ClassSummaries:        []ClassSummary{},
		UnassignedChildren:    []UnassignedChild{},
		UnassignedStaff:       []UnassignedStaff{},
		Warnings:              []string{},
	}

	currentClassOf := make(map[int]string, len(currentChildAs))
	for _, a := range currentChildAs {
		currentClassOf[a.ChildID] = a.ClassID
	}
	for _, child := range counts.unassignedChildren {
		uc := UnassignedChild{ChildID: child.ID, Name: child.Name}
		if classID, ok := currentClassOf[child.ID]; ok {
			uc.CurrentClassID = null.StringFrom(classID)
		}
		p.UnassignedChildren = append(p.UnassignedChildren, uc)
	}
	for _, s := range counts.unassignedStaff {
		p.UnassignedStaff = append(p.UnassignedStaff, UnassignedStaff{StaffID: s.ID, Name: s.Name, Position: s.Position})
	}
	if n := len(p.UnassignedChildren); n > 0 {
		p.Warnings = append(p.Warnings, fmt.Sprintf("%d children have no class assigned for %d", n, target.Year))
	}
	if n := len(p.UnassignedStaff); n > 0 {
		p.Warnings = append(p.Warnings, fmt.Sprintf("%d staff members have no class assigned for %d", n, target.Year))
	}
	if n := len(counts.withdrawn); n > 0 {
		p.Warnings = append(p.Warnings, fmt.Sprintf(
			"%d withdrawn children still hold a class assignment for %d and will not be promoted", n, target.Year))
	}

	p.ClassSummaries, p.Warnings = summarizeClasses(classes, children, staff, futureChildAs, futureStaffAs, p.Warnings)
	return p, nil
}

func summarizeClasses(
	classes []nursery.Class,
	children []nursery.Child,
	staff []nursery.Staff,
	childAs []assignment.ChildAssignment,
	staffAs []assignment.StaffAssignment,
	warnings []string,
) ([]ClassSummary, []string) {
	childIdx := nursery.ChildrenByID(children)
	staffIdx := nursery.StaffByID(staff)
	classIdx := nursery.ClassesByID(classes)

	childrenOf := make(map[string][]int)
	unknown := make(map[string]bool)
	for _, a := range childAs {
		if child, ok := childIdx[a.ChildID]; !ok || !child.IsActive {
			continue
		}
		childrenOf[a.ClassID] = append(childrenOf[a.ClassID], a.ChildID)
		if class, ok := classIdx[a.ClassID]; !ok || !class.IsActive {
			unknown[a.ClassID] = true
		}
	}
	staffOf := make(map[string][]int)
	mainTeacher := make(map[string]bool)
	for _, a := range staffAs {
		if s, ok := staffIdx[a.StaffID]; !ok || !s.IsActive {
			continue
		}
		staffOf[a.ClassID] = append(staffOf[a.ClassID], a.StaffID)
		if a.Role == assignment.RoleMainTeacher {
			mainTeacher[a.ClassID] = true
		}
		if class, ok := classIdx[a.ClassID]; !ok || !class.IsActive {
			unknown[a.ClassID] = true
		}
	}

	sort.Slice(classes, func(i, j int) bool {
		if classes[i].AgeGroup != classes[j].AgeGroup {
			return classes[i].AgeGroup < classes[j].AgeGroup
		}
		return classes[i].ID < classes[j].ID
	})
	summaries := make([]ClassSummary, 0, len(classes))
	for _, class := range classes {
		if !class.IsActive {
			continue
		}
		childIDs := sortedInts(childrenOf[class.ID])
		staffIDs := sortedInts(staffOf[class.ID])
		cs := ClassSummary{
			ClassID:        class.ID,
			ClassName:      class.Name,
			AgeGroup:       class.AgeGroup,
			MaxCapacity:    class.MaxCapacity,
			ChildCount:     len(childIDs),
			StaffCount:     len(staffIDs),
			IsOverCapacity: len(childIDs) > class.MaxCapacity,
			ChildIDs:       childIDs,
			StaffIDs:       staffIDs,
		}
		summaries = append(summaries, cs)

		switch {
		case class.MaxCapacity == 0:
			warnings = append(warnings, fmt.Sprintf("class %s (%s) has a capacity of 0", class.ID, class.Name))
		case cs.IsOverCapacity:
			warnings = append(warnings, fmt.Sprintf("class %s (%s) exceeds its capacity: %d children for %d places",
				class.ID, class.Name, cs.ChildCount, class.MaxCapacity))
		}
		if cs.ChildCount > 0 && !mainTeacher[class.ID] {
			warnings = append(warnings, fmt.Sprintf("class %s (%s) has no main teacher", class.ID, class.Name))
		}
	}

	unknownIDs := make([]string, 0, len(unknown))
	for classID := range unknown {
		unknownIDs = append(unknownIDs, classID)
	}
	sort.Strings(unknownIDs)
	for _, classID := range unknownIDs {
		warnings = append(warnings, fmt.Sprintf("class %s has assignments but is missing or inactive in the target year", classID))
	}
	return summaries, warnings
}

// Execute performs the year slide: the future year becomes current and the current year becomes past.
// Assignments are never moved; the ones already made for the target year simply become effective.
func (svc *Service) Execute(ctx context.Context, req Request) (Result, error) {
	started := svc.now()
	res := Result{
		NurseryID:        req.NurseryID,
		NewYear:          req.TargetYear,
		ExecutedAt:       started.UTC(),
		ExecutedByUserID: req.ExecutedByUserID,
		Messages:         []string{},
		Notes:            req.Notes,
	}
	if !req.Confirmed {
		err := core.NewStateError(core.CodePreconditionFailed, "the year slide must be confirmed before it is executed")
		res.ErrorMessage = null.StringFrom(err.Error())
		recordExecution(outcomeRejected, svc.now().Sub(started), 0)
		return res, err
	}

	var done Result
	err := svc.store.Slide(ctx, req.NurseryID, func(tx Tx) error {
		years, err := tx.Years(ctx)
		if err != nil {
			return errors.Wrap(err, "locking academic years")
		}
		current := findCurrent(years)
		if current == nil {
			return academicyear.ErrNotConfigured(req.NurseryID)
		}
		res.PreviousYear = current.Year
		target, err := checkTarget(findFuture(years), *current, req.TargetYear)
		if err != nil {
			return err
		}

		// clear the current flag first: at most one current year at any time
		if err = tx.SetYearFlags(ctx, current.Year, false, false); err != nil {
			return errors.Wrap(err, "closing current academic year")
		}
		if err = tx.SetYearFlags(ctx, target.Year, true, false); err != nil {
			return errors.Wrap(err, "opening target academic year")
		}

		children, err := tx.Children(ctx)
		if err != nil {
			return errors.Wrap(err, "listing children")
		}
		staff, err := tx.Staff(ctx)
		if err != nil {
			return errors.Wrap(err, "listing staff")
		}
		childAs, err := tx.ChildAssignments(ctx, target.Year)
		if err != nil {
			return errors.Wrap(err, "listing child assignments")
		}
		staffAs, err := tx.StaffAssignments(ctx, target.Year)
		if err != nil {
			return errors.Wrap(err, "listing staff assignments")
		}
		counts := countAffected(children, staff, childAs, staffAs)

		done = res
		done.ID = svc.newID()
		done.Success = true
		done.SlidedChildrenCount = counts.children
		done.SlidedStaffCount = counts.staff
		done.Messages = slideMessages(target.Year, current.Year, counts)

		return errors.Wrap(tx.InsertLog(ctx, done), "saving year slide log")
	})
	elapsed := svc.now().Sub(started)

	if err != nil {
		outcome := outcomeRejected
		if _, ok := core.ErrorCodeOf(err); ok {
			res.ErrorMessage = null.StringFrom(err.Error())
		} else {
			outcome = outcomeFailed
			res.ErrorMessage = null.StringFrom(genericFailureMessage)
			svc.logger.Error("yearslide: executing slide", err, svc.person(req))
			err = errors.Wrap(err, "executing year slide")
		}
		recordExecution(outcome, elapsed, 0)
		svc.saveFailure(ctx, res)
		return res, err
	}

	recordExecution(outcomeSuccess, elapsed, done.SlidedChildrenCount)
	svc.logger.Info(
		fmt.Sprintf("yearslide: nursery %d moved from %d to %d", done.NurseryID, done.PreviousYear, done.NewYear),
		map[string]interface{}{
			"slidedChildren": done.SlidedChildrenCount,
			"slidedStaff":    done.SlidedStaffCount,
		},
		svc.person(req),
	)
	svc.sendReport(done)
	return done, nil
}

// History returns the audit records of the nursery, newest first.
func (svc *Service) History(ctx context.Context, nurseryID int) ([]Result, error) {
	logs, err := svc.store.ListLogs(ctx, nurseryID)
	if err != nil {
		return nil, errors.Wrap(err, "listing year slide logs")
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].ExecutedAt.After(logs[j].ExecutedAt) })
	return logs, nil
}

// saveFailure keeps track of rejected & failed attempts. The slide itself was rolled back.
func (svc *Service) saveFailure(ctx context.Context, res Result) {
	res.ID = svc.newID()
	res.Success = false
	if err := svc.store.SaveLog(ctx, res); err != nil {
		svc.logger.Error("yearslide: saving failed slide log", err)
	}
}

func (svc *Service) person(req Request) core.Person {
	return core.Person{ID: strconv.Itoa(req.ExecutedByUserID)}
}

func (svc *Service) sendReport(res Result) {
	if len(svc.recipients) == 0 || svc.mailSvc == nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           svc.recipients,
		Subject:      fmt.Sprintf("Academic year %d has started", res.NewYear),
		TemplateName: "year_slide_report",
		TemplateData: res,
		Category:     "year-slide",
		Tags: map[string]string{
			"slideId":      res.ID.String(),
			"nurseryId":    strconv.Itoa(res.NurseryID),
			"previousYear": strconv.Itoa(res.PreviousYear),
			"newYear":      strconv.Itoa(res.NewYear),
		},
	})
}

type slideCounts struct {
	children           int
	staff              int
	withdrawn          []nursery.Child
	unassignedChildren []nursery.Child
	unassignedStaff    []nursery.Staff
}

// countAffected counts the active children & distinct active staff holding an assignment for the target year.
// Preview and execution share it so that both always agree.
func countAffected(
	children []nursery.Child,
	staff []nursery.Staff,
	childAs []assignment.ChildAssignment,
	staffAs []assignment.StaffAssignment,
) slideCounts {
	var counts slideCounts

	assignedChildren := make(map[int]bool, len(childAs))
	for _, a := range childAs {
		assignedChildren[a.ChildID] = true
	}
	sortedChildren := append([]nursery.Child(nil), children...)
	sort.Slice(sortedChildren, func(i, j int) bool { return sortedChildren[i].ID < sortedChildren[j].ID })
	for _, child := range sortedChildren {
		switch {
		case !child.IsActive && assignedChildren[child.ID]:
			counts.withdrawn = append(counts.withdrawn, child)
		case !child.IsActive:
		case assignedChildren[child.ID]:
			counts.children++
		default:
			counts.unassignedChildren = append(counts.unassignedChildren, child)
		}
	}

	assignedStaff := make(map[int]bool, len(staffAs))
	for _, a := range staffAs {
		assignedStaff[a.StaffID] = true
	}
	sortedStaff := append([]nursery.Staff(nil), staff...)
	sort.Slice(sortedStaff, func(i, j int) bool { return sortedStaff[i].ID < sortedStaff[j].ID })
	for _, s := range sortedStaff {
		switch {
		case !s.IsActive:
		case assignedStaff[s.ID]:
			counts.staff++
		default:
			counts.unassignedStaff = append(counts.unassignedStaff, s)
		}
	}
	return counts
}

func slideMessages(newYear, previousYear int, counts slideCounts) []string {
	msgs := []string{fmt.Sprintf("academic year %d is now the current year; %d is closed", newYear, previousYear)}
	for _, child := range counts.withdrawn {
		msgs = append(msgs, fmt.Sprintf(
			"child %d (%s) is withdrawn; the class assignment for %d was kept but not promoted", child.ID, child.Name, newYear))
	}
	if n := len(counts.unassignedChildren); n > 0 {
		msgs = append(msgs, fmt.Sprintf("%d children had no class assigned for %d and were not promoted", n, newYear))
	}
	if n := len(counts.unassignedStaff); n > 0 {
		msgs = append(msgs, fmt.Sprintf("%d staff members had no class assigned for %d", n, newYear))
	}
	return msgs
}

func checkTarget(future *academicyear.AcademicYear, current academicyear.AcademicYear, targetYear int) (academicyear.AcademicYear, error) {
	if targetYear <= current.Year {
		return academicyear.AcademicYear{}, core.NewStateError(core.CodeInvalidState,
			"invalid target year %d: it must come after the current academic year %d", targetYear, current.Year)
	}
	if future == nil || future.Year != targetYear {
		return academicyear.AcademicYear{}, core.NewStateError(core.CodeInvalidState,
			"invalid target year %d: it is not the registered future academic year", targetYear)
	}
	return *future, nil
}

func findCurrent(years []academicyear.AcademicYear) *academicyear.AcademicYear {
	for i := range years {
		if years[i].IsCurrent {
			return &years[i]
		}
	}
	return nil
}

func findFuture(years []academicyear.AcademicYear) *academicyear.AcademicYear {
	for i := range years {
		if years[i].IsFuture {
			return &years[i]
		}
	}
	return nil
}

func sortedInts(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	sort.Ints(ids)
	return ids
}
