package main

import (
	"context"
	"fmt"

	"github.com/pan-thu/lets-talk-sub000/core/course"
)

func (cli *commandLine) addCourse(ctx context.Context, args []string) error {
	cmd := cli.newFlagSet("addcourse")
	title := cmd.String("title", "", "The course title.")
	teacherID := cmd.String("teacher", "", "The id of the teacher running the course.")
	price := cmd.Int64("price", 0, "The price in cents; 0 makes the course free.")
	currency := cmd.String("currency", "", "ISO 4217 currency code (default USD).")
	publish := cmd.Bool("publish", false, "Open the course for enrollment.")
	if err := cmd.Parse(args); err != nil {
		return errHelp
	}
	if *title == "" || *teacherID == "" {
		cmd.Usage()
		return errHelp
	}

	crs, err := cli.courseSvc.Create(ctx, course.NewCourse{
		Title:       *title,
		TeacherID:   *teacherID,
		PriceCents:  *price,
		Currency:    *currency,
		IsPublished: *publish,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "course %s created\n", crs.ID)
	return nil
}

func (cli *commandLine) addLesson(ctx context.Context, args []string) error {
	cmd := cli.newFlagSet("addlesson")
	courseID := cmd.String("course", "", "The course id.")
	title := cmd.String("title", "", "The lesson title.")
	position := cmd.Int("position", 0, "The lesson's position in the course.")
	if err := cmd.Parse(args); err != nil {
		return errHelp
	}
	if *courseID == "" || *title == "" {
		cmd.Usage()
		return errHelp
	}

	lsn, err := cli.courseSvc.AddLesson(ctx, course.NewLesson{
		CourseID: *courseID,
		Title:    *title,
		Position: *position,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "lesson %s added\n", lsn.ID)
	return nil
}
