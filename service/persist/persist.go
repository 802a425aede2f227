package persist

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
)

// DBID represents a database ID
type DBID string

// CreationTime represents the time a record was created
type CreationTime time.Time

// LastUpdatedTime represents the time a record was last updated
type LastUpdatedTime time.Time

// NullString is a string that persists as SQL NULL when empty
type NullString string

// GenerateID generates a application-wide unique ID
func GenerateID() DBID {
	id, err := ksuid.NewRandom()
	if err != nil {
		panic(err)
	}
	return DBID(id.String())
}

func (d DBID) String() string {
	return string(d)
}

// Value implements the driver.Valuer interface for the DBID type
func (d DBID) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements the sql.Scanner interface for the DBID type
func (d *DBID) Scan(src interface{}) error {
	if src == nil {
		*d = DBID("")
		return nil
	}
	switch it := src.(type) {
	case string:
		*d = DBID(it)
	case []uint8:
		*d = DBID(it)
	default:
		return fmt.Errorf("unsupported DBID source type %T", src)
	}
	return nil
}

// Time returns the time.Time representation of the CreationTime
func (c CreationTime) Time() time.Time {
	return time.Time(c)
}

// MarshalJSON returns the JSON representation of the CreationTime
func (c CreationTime) MarshalJSON() ([]byte, error) {
	bs, err := c.Time().MarshalJSON()
	if err != nil {
		return nil, err
	}
	return bs, nil
}

// UnmarshalJSON sets the CreationTime from the JSON representation
func (c *CreationTime) UnmarshalJSON(b []byte) error {
	t := time.Time{}
	err := json.Unmarshal(b, &t)
	if err != nil {
		return err
	}
	*c = CreationTime(t)
	return nil
}

// Value implements the driver.Valuer interface for the CreationTime type
func (c CreationTime) Value() (driver.Value, error) {
	return c.Time(), nil
}

// Scan implements the sql.Scanner interface for the CreationTime type
func (c *CreationTime) Scan(src interface{}) error {
	if src == nil {
		*c = CreationTime{}
		return nil
	}
	*c = CreationTime(src.(time.Time))
	return nil
}

// Time returns the time.Time representation of the LastUpdatedTime
func (l LastUpdatedTime) Time() time.Time {
	return time.Time(l)
}

// MarshalJSON returns the JSON representation of the LastUpdatedTime
func (l LastUpdatedTime) MarshalJSON() ([]byte, error) {
	bs, err := l.Time().MarshalJSON()
	if err != nil {
		return nil, err
	}
	return bs, nil
}

// UnmarshalJSON sets the LastUpdatedTime from the JSON representation
func (l *LastUpdatedTime) UnmarshalJSON(b []byte) error {
	t := time.Time{}
	err := json.Unmarshal(b, &t)
	if err != nil {
		return err
	}
	*l = LastUpdatedTime(t)
	return nil
}

// Value implements the driver.Valuer interface for the LastUpdatedTime type
func (l LastUpdatedTime) Value() (driver.Value, error) {
	return l.Time(), nil
}

// Scan implements the sql.Scanner interface for the LastUpdatedTime type
func (l *LastUpdatedTime) Scan(src interface{}) error {
	if src == nil {
		*l = LastUpdatedTime{}
		return nil
	}
	*l = LastUpdatedTime(src.(time.Time))
	return nil
}

func (n NullString) String() string {
	return string(n)
}

// Value implements the driver.Valuer interface for the NullString type
func (n NullString) Value() (driver.Value, error) {
	if n == "" {
		return nil, nil
	}
	return n.String(), nil
}

// Scan implements the sql.Scanner interface for the NullString type
func (n *NullString) Scan(src interface{}) error {
	if src == nil {
		*n = NullString("")
		return nil
	}
	switch it := src.(type) {
	case string:
		*n = NullString(it)
	case []uint8:
		*n = NullString(it)
	default:
		return fmt.Errorf("unsupported NullString source type %T", src)
	}
	return nil
}
