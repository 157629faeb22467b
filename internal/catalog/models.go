package catalog

// PublicOwner is the owner id of files visible to every user.
const PublicOwner uint = 0

// User owns private media files.
type User struct {
	ID       uint   `gorm:"column:id;primaryKey"`
	Login    string `gorm:"column:login;size:20;not null;uniqueIndex"`
	Password string `gorm:"column:password;size:100"`
}

func (User) TableName() string { return "users" }

// Tag is a known keyword.
type Tag struct {
	ID   uint   `gorm:"column:id;primaryKey"`
	Name string `gorm:"column:tag;size:20;not null;uniqueIndex"`
}

func (Tag) TableName() string { return "tags" }

// Location is a named place. Latitude/Longitude hold the city center when
// known, never the coordinates of a particular file.
type Location struct {
	ID        uint     `gorm:"column:id;primaryKey"`
	Latitude  *float64 `gorm:"column:latitude"`
	Longitude *float64 `gorm:"column:longitude"`
	City      string   `gorm:"column:city;size:64;not null;uniqueIndex:idx_locations_place"`
	Country   string   `gorm:"column:country;size:64;not null;uniqueIndex:idx_locations_place"`
	Code      string   `gorm:"column:code;size:2"`
}

func (Location) TableName() string { return "locations" }

// MediaFile is the catalog row of one photo or video. Coords keeps the
// original sensor coordinates "lat,lon" of the file.
type MediaFile struct {
	ID          uint      `gorm:"column:id;primaryKey"`
	UserID      uint      `gorm:"column:user_id;not null;default:0;index"`
	Path        string    `gorm:"column:path;size:1024;not null;uniqueIndex"`
	Duration    float64   `gorm:"column:duration"`
	Size        int64     `gorm:"column:size"`
	Title       string    `gorm:"column:title;size:265"`
	Description string    `gorm:"column:description;type:text"`
	Comment     string    `gorm:"column:comment;type:text"`
	Tags        string    `gorm:"column:tags;size:256"`
	Coords      string    `gorm:"column:coords;size:50"`
	LocationID  *uint     `gorm:"column:location_id;index"`
	Location    *Location `gorm:"foreignKey:LocationID"`
	Year        int       `gorm:"column:year;index"`
	Created     string    `gorm:"column:created;size:30"`
	Imported    string    `gorm:"column:imported;size:30"`
	Updated     string    `gorm:"column:updated;size:30"`
	Accessed    string    `gorm:"column:accessed;size:30"`
	Visits      int       `gorm:"column:visits;not null;default:0"`
}

func (MediaFile) TableName() string { return "mediafiles" }

// Models lists every table of the catalog in migration order.
func Models() []any {
	return []any{&User{}, &Tag{}, &Location{}, &MediaFile{}}
}
