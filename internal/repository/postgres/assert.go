package postgres

import "github.com/honeynil/RecycleRewardsAdmin/internal/repository"

var (
	_ repository.Transactor             = (*Transactor)(nil)
	_ repository.RedemptionRepository   = (*RedemptionRepository)(nil)
	_ repository.BalanceRepository      = (*BalanceRepository)(nil)
	_ repository.LedgerRepository       = (*LedgerRepository)(nil)
	_ repository.NotificationRepository = (*NotificationRepository)(nil)
	_ repository.AdminRepository        = (*AdminRepository)(nil)
)
