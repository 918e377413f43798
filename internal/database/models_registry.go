package database

import "socialgraph/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.FriendRequest{},
		&models.FriendshipEdge{},
	}
}
