package domain

// Snapshot is the configuration record together with both vault balances.
type Snapshot struct {
	Config   *ConfigRecord  `json:"config"`
	OldVault *CustodyRecord `json:"old_vault"`
	NewVault *CustodyRecord `json:"new_vault"`
}
