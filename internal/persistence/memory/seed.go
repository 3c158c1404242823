package memory

import (
	"encoding/json"
	"fmt"
	"io"
)

// Seed is the document accepted by Store.Seed.
type Seed struct {
	Courses []struct {
		Id          int64  `json:"id"`
		Title       string `json:"title"`
		MaxCapacity int    `json:"maxCapacity"`
	} `json:"courses"`
	Users []struct {
		Id             int64  `json:"id"`
		ContactAddress string `json:"contactAddress"`
	} `json:"users"`
	Bookings []struct {
		CourseId int64 `json:"courseId"`
		UserId   int64 `json:"userId"`
	} `json:"bookings"`
}

// Seed loads courses, users and active bookings from a JSON document.
func (s *Store) Seed(r io.Reader) error {
	var seed Seed
	err := json.NewDecoder(r).Decode(&seed)
	if err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}

	for _, c := range seed.Courses {
		if c.Id <= 0 || c.MaxCapacity < 0 {
			return fmt.Errorf("invalid seed course %d", c.Id)
		}

		s.PutCourse(c.Id, c.Title, c.MaxCapacity)
	}

	for _, u := range seed.Users {
		s.PutUser(u.Id, u.ContactAddress)
	}

	for _, b := range seed.Bookings {
		_, err := s.Book(b.CourseId, b.UserId)
		if err != nil {
			return fmt.Errorf("seed booking of user %d on course %d: %w", b.UserId, b.CourseId, err)
		}
	}

	return nil
}
