package reqchannel

import "time"

// SessionEconomicConfig is an optional fee schedule for session
// creation/renewal (e.g. a storage quota fee), grounded on
// original_source's session.rs SessionEconomicConfig. Off by default:
// spec.md §3.5/§4.6 doesn't mention fees but doesn't forbid them.
type SessionEconomicConfig struct {
	CreationFee              uint64
	MaintenanceFeePerHour    uint64
	DAOFeePercentage         float64
	UBIPercentage            float64
	SecurityLevelMultipliers map[int]float64
}

// EconomicAssessment is the fee breakdown for one session operation.
type EconomicAssessment struct {
	TotalFees      uint64
	DAOFees        uint64
	UBIContribution uint64
}

// EnableEconomics turns on fee assessment using cfg. Manager does not
// enforce payment; callers (e.g. the chain's economic tx builders)
// decide what to do with the assessment.
func (m *Manager) EnableEconomics(cfg SessionEconomicConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.economics = &cfg
}

func (m *Manager) securityMultiplier(level int) float64 {
	if m.economics.SecurityLevelMultipliers == nil {
		return 1.0
	}
	if mult, ok := m.economics.SecurityLevelMultipliers[level]; ok {
		return mult
	}
	return 1.0
}

func assess(totalFees uint64, cfg *SessionEconomicConfig) EconomicAssessment {
	dao := uint64(float64(totalFees) * cfg.DAOFeePercentage)
	ubi := uint64(float64(totalFees) * cfg.UBIPercentage)
	return EconomicAssessment{TotalFees: totalFees, DAOFees: dao, UBIContribution: ubi}
}

// AssessCreationFee returns the fee for creating a session at the given
// security level, or the zero EconomicAssessment if economics are
// disabled (spec.md carries no fee by default).
func (m *Manager) AssessCreationFee(securityLevel int) EconomicAssessment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.economics == nil {
		return EconomicAssessment{}
	}
	total := uint64(float64(m.economics.CreationFee) * m.securityMultiplier(securityLevel))
	return assess(total, m.economics)
}

// AssessRenewalFee returns the fee for extending a session by
// extension, prorated hourly, or zero if economics are disabled.
func (m *Manager) AssessRenewalFee(securityLevel int, extension time.Duration) EconomicAssessment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.economics == nil {
		return EconomicAssessment{}
	}
	hours := uint64(extension / time.Hour)
	if extension%time.Hour != 0 {
		hours++
	}
	base := hours * m.economics.MaintenanceFeePerHour
	total := uint64(float64(base) * m.securityMultiplier(securityLevel))
	return assess(total, m.economics)
}
