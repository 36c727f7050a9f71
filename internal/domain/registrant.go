package domain

import (
	"strings"
	"time"
)

// Gender enumerates the designations shared by registrants and rooms.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// Valid reports whether g is a known gender value.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// ParseGender normalizes user input such as "male" or "F".
func ParseGender(raw string) (Gender, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "MALE", "M":
		return GenderMale, true
	case "FEMALE", "F":
		return GenderFemale, true
	}
	return "", false
}

// Registrant is a person eligible for housing, owned by the intake process.
type Registrant struct {
	ID          string    `json:"id"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Gender      Gender    `json:"gender"`
	DateOfBirth time.Time `json:"date_of_birth"`
	CreatedAt   time.Time `json:"created_at"`
}

// AgeAt returns the registrant's age in whole years at the given instant.
func (r Registrant) AgeAt(at time.Time) int {
	return AgeAt(r.DateOfBirth, at)
}

// AgeAt computes whole-year age, subtracting one when this year's birthday
// has not happened yet. A Feb 29 birthday counts as Mar 1 in common years.
func AgeAt(dob, at time.Time) int {
	if dob.IsZero() {
		return 0
	}
	at = at.In(dob.Location())
	age := at.Year() - dob.Year()
	birthdayMonth, birthdayDay := dob.Month(), dob.Day()
	if birthdayMonth == time.February && birthdayDay == 29 && !isLeap(at.Year()) {
		birthdayMonth, birthdayDay = time.March, 1
	}
	if at.Month() < birthdayMonth || (at.Month() == birthdayMonth && at.Day() < birthdayDay) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// AgeGap is the absolute difference between two ages.
func AgeGap(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
