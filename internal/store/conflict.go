package store

import "gorm.io/gorm/clause"

// clauseOnConflictPhone makes AddContactsToCampaign idempotent when the
// same phone number is submitted twice (e.g. a retried CSV import) by
// leaving the existing row untouched rather than erroring.
func clauseOnConflictPhone() clause.OnConflict {
	return clause.OnConflict{Columns: []clause.Column{{Name: "phone"}}, DoNothing: true}
}

// clauseOnConflictJoin makes the campaign_contacts link idempotent on its
// composite primary key.
func clauseOnConflictJoin() clause.OnConflict {
	return clause.OnConflict{Columns: []clause.Column{{Name: "campaign_id"}, {Name: "contact_id"}}, DoNothing: true}
}
