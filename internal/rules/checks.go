package rules

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"
)

const (
	// MaxEfficiencyThreshold 超过该效率只记录告警
	MaxEfficiencyThreshold = 2.5
	// MinProcessingTimeMinutes 小于该值的正时长视为无意义
	MinProcessingTimeMinutes = 0.1
	// ScrapRateWarningThreshold 报废率告警阈值
	ScrapRateWarningThreshold = 0.05
	// MaxPlannedDuration 计划时长上限
	MaxPlannedDuration = 30 * 24 * time.Hour
)

func checkQuantityRelationships(s Snapshot, log *logrus.Entry) []string {
	var errs []string

	if s.QtyDesired != nil && *s.QtyDesired <= 0 {
		errs = append(errs, "Desired quantity must be positive")
	}
	if s.QtyProcessed != nil && *s.QtyProcessed < 0 {
		errs = append(errs, "Processed quantity cannot be negative")
	}
	if s.QtyScrap != nil && *s.QtyScrap < 0 {
		errs = append(errs, "Scrap quantity cannot be negative")
	}

	if s.QtyDesired != nil && s.QtyProcessed != nil && *s.QtyProcessed > *s.QtyDesired {
		errs = append(errs, fmt.Sprintf("Processed quantity (%d) cannot exceed desired quantity (%d)", *s.QtyProcessed, *s.QtyDesired))
	}
	if s.QtyProcessed != nil && s.QtyScrap != nil && *s.QtyScrap > *s.QtyProcessed {
		errs = append(errs, fmt.Sprintf("Scrap quantity (%d) cannot exceed processed quantity (%d)", *s.QtyScrap, *s.QtyProcessed))
	}

	if rate, ok := s.ScrapRate(); ok && rate > ScrapRateWarningThreshold {
		log.Warnf("High scrap rate detected: %.2f%%", rate*100)
	}
	return errs
}

func checkTimeRelationships(s Snapshot, log *logrus.Entry) []string {
	var errs []string

	if s.PlannedStartAt != nil && s.PlannedEndAt != nil {
		if !s.PlannedStartAt.Before(*s.PlannedEndAt) {
			errs = append(errs, "Planned start time must be before planned end time")
		}
		if s.PlannedEndAt.Sub(*s.PlannedStartAt) > MaxPlannedDuration {
			errs = append(errs, "Planned duration exceeds 30 days - please verify")
		}
	}

	if s.ActualStartAt != nil && s.ActualEndAt != nil && !s.ActualStartAt.Before(*s.ActualEndAt) {
		errs = append(errs, "Actual start time must be before actual end time")
	}

	for _, f := range s.durations() {
		if f.value == nil {
			continue
		}
		switch v := *f.value; {
		case v < 0:
			errs = append(errs, fmt.Sprintf("%s cannot be negative", f.name))
		case v > 0 && v < MinProcessingTimeMinutes:
			errs = append(errs, fmt.Sprintf("%s is too small to be meaningful", f.name))
		}
	}

	if s.TTargetProcessingMin != nil && s.TTargetSetupMin != nil && s.TTargetLeadMin != nil {
		if *s.TTargetLeadMin < *s.TTargetProcessingMin+*s.TTargetSetupMin {
			errs = append(errs, "Target lead time should be at least the sum of processing and setup times")
		}
	}

	if eff, ok := s.ProcessingEfficiency(); ok && eff > MaxEfficiencyThreshold {
		log.Warnf("Unusually high efficiency: %.2f", eff)
	}
	return errs
}

func checkStatusConstraints(s Snapshot, _ *logrus.Entry) []string {
	if s.Status == nil {
		return nil
	}

	var errs []string
	switch *s.Status {
	case "IN_PROGRESS":
		if s.ActualStartAt == nil {
			errs = append(errs, "Operations in progress must have an actual start time")
		}
	case "FINISHED":
		if s.ActualStartAt == nil {
			errs = append(errs, "Finished operations must have an actual start time")
		}
		if s.ActualEndAt == nil {
			errs = append(errs, "Finished operations must have an actual end time")
		}
		if s.QtyProcessed == nil || *s.QtyProcessed <= 0 {
			errs = append(errs, "Finished operations must have processed quantity > 0")
		}
	}
	return errs
}

func checkWorkplaceConstraints(s Snapshot, _ *logrus.Entry) []string {
	var errs []string
	if s.AssetID != nil && *s.AssetID <= 0 {
		errs = append(errs, "Asset ID must be positive")
	}
	if s.WorkplaceName != nil && strings.TrimSpace(*s.WorkplaceName) == "" {
		errs = append(errs, "Workplace name cannot be empty")
	}
	if s.WorkplaceGroup != nil && strings.TrimSpace(*s.WorkplaceGroup) == "" {
		errs = append(errs, "Workplace group cannot be empty")
	}
	return errs
}

func checkOperationSequence(s Snapshot, log *logrus.Entry) []string {
	var errs []string
	if s.OrderNo != nil && strings.TrimSpace(*s.OrderNo) == "" {
		errs = append(errs, "Order number cannot be empty")
	}
	if s.OperationNo != nil {
		opNo := strings.TrimSpace(*s.OperationNo)
		if opNo == "" {
			errs = append(errs, "Operation number cannot be empty")
		} else if !isDigits(opNo) {
			log.Infof("Operation number %s is not purely numeric (may be valid)", opNo)
		}
	}
	return errs
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
