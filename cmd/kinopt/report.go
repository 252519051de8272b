package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/samber/lo"

	"go.viam.com/kinopt/collision"
	"go.viam.com/kinopt/kinematics"
	"go.viam.com/kinopt/motionplan"
	"go.viam.com/kinopt/motionplan/ik"
	"go.viam.com/kinopt/referenceframe"
	spatial "go.viam.com/kinopt/spatialmath"
)

var kindColors = map[ik.OutcomeKind]*color.Color{
	ik.Converged:             color.New(color.FgGreen),
	ik.ConvergedInfeasible:   color.New(color.FgYellow),
	ik.IterationLimitReached: color.New(color.FgYellow),
	ik.SolverError:           color.New(color.FgRed, color.Bold),
}

// kindLabel colors an outcome kind when the output is a terminal.
func kindLabel(k ik.OutcomeKind) string {
	if c, ok := kindColors[k]; ok {
		return c.Sprint(k.String())
	}
	return k.String()
}

func formatInputs(inputs []referenceframe.Input) string {
	if inputs == nil {
		return "-"
	}
	return strings.Join(lo.Map(inputs, func(v referenceframe.Input, _ int) string {
		return strconv.FormatFloat(v, 'f', 4, 64)
	}), ", ")
}

func formatPoint(pt r3.Vector) string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f)", pt.X, pt.Y, pt.Z)
}

// printOutcomes writes one row per goal with the achieved pose error, then the cost breakdown per term.
func printOutcomes(w io.Writer, m *referenceframe.Model, goals []motionplan.Goal, outcomes []*motionplan.Outcome) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "link", "outcome", "cost", "position error", "orientation error (deg)", "violations", "inputs"})

	costs := make([]float64, 0, len(outcomes))
	var failures []string
	for i, out := range outcomes {
		posErr, orientErr := "-", "-"
		if out.Inputs != nil {
			pose, err := kinematics.LinkPose(m, out.Inputs, goals[i].Link)
			if err != nil {
				return err
			}
			posErr = strconv.FormatFloat(pose.Point().Sub(goals[i].Pose.Point()).Norm(), 'g', 4, 64)
			if !goals[i].PositionOnly {
				orientErr = strconv.FormatFloat(ik.OrientDist(goals[i].Pose.Orientation(), pose.Orientation()), 'g', 4, 64)
			}
			costs = append(costs, out.Cost)
		}
		violations := "-"
		if len(out.Violations) > 0 {
			violations = strings.Join(out.Violations, ", ")
		}
		t.AppendRow([]interface{}{
			i, goals[i].Link, kindLabel(out.Kind), strconv.FormatFloat(out.Cost, 'g', 4, 64),
			posErr, orientErr, violations, formatInputs(out.Inputs),
		})
		if out.Err != nil {
			failures = append(failures, fmt.Sprintf("%d: %v", i, out.Err))
		}
	}
	if len(outcomes) > 1 {
		total, _ := stats.Sum(costs)
		worst, _ := stats.Max(costs)
		t.AppendFooter(table.Row{"", "", "total", strconv.FormatFloat(total, 'g', 4, 64), "", "", "worst", strconv.FormatFloat(worst, 'g', 4, 64)})
	}
	t.Render()

	printBreakdown(w, outcomes)
	for _, f := range failures {
		fmt.Fprintf(w, "error %s\n", f)
	}
	return nil
}

func printBreakdown(w io.Writer, outcomes []*motionplan.Outcome) {
	terms := lo.Uniq(lo.FlatMap(outcomes, func(out *motionplan.Outcome, _ int) []string {
		return lo.Keys(out.Breakdown)
	}))
	if len(terms) == 0 {
		return
	}
	sort.Strings(terms)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	header := table.Row{"#"}
	for _, term := range terms {
		header = append(header, term)
	}
	t.AppendHeader(header)
	for i, out := range outcomes {
		row := table.Row{i}
		for _, term := range terms {
			v, ok := out.Breakdown[term]
			if !ok {
				row = append(row, "-")
				continue
			}
			row = append(row, strconv.FormatFloat(v, 'g', 4, 64))
		}
		t.AppendRow(row)
	}
	t.Render()
}

func pairLabel(m *referenceframe.Model, obstacles []spatial.Geometry, pair collision.PairID) string {
	names := m.LinkNames()
	if pair.Kind == collision.SelfPair {
		return names[pair.LinkA] + " / " + names[pair.LinkB]
	}
	label := obstacles[pair.Obstacle].Label()
	if label == "" {
		label = "obstacle " + strconv.Itoa(pair.Obstacle)
	}
	return names[pair.LinkA] + " / " + label
}

// printProximity writes every checked pair, flagging those inside margin.
func printProximity(w io.Writer, m *referenceframe.Model, obstacles []spatial.Geometry, prox []collision.Proximity, margin float64) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"pair", "distance", "witness a", "witness b", "within margin"})
	for _, p := range prox {
		t.AppendRow([]interface{}{
			pairLabel(m, obstacles, p.Pair),
			strconv.FormatFloat(p.Distance, 'f', 4, 64),
			formatPoint(p.WitnessA),
			formatPoint(p.WitnessB),
			p.Distance < margin,
		})
	}
	t.AppendFooter(table.Row{"minimum", strconv.FormatFloat(collision.MinimumDistance(prox), 'f', 4, 64)})
	t.Render()
}

func printLearnReport(w io.Writer, m *referenceframe.Model, report *collision.LearnReport) {
	learned := make(map[[2]int]bool, len(report.Learned))
	for _, pair := range report.Learned {
		learned[pair] = true
		learned[[2]int{pair[1], pair[0]}] = true
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"pair", "collision ratio", "average distance", "exempted"})
	for i, pair := range report.Pairs {
		t.AppendRow([]interface{}{
			pairLabel(m, nil, pair),
			strconv.FormatFloat(report.CollisionRatio[i], 'f', 3, 64),
			strconv.FormatFloat(report.AverageDistance[i], 'f', 4, 64),
			learned[[2]int{pair.LinkA, pair.LinkB}],
		})
	}
	t.AppendFooter(table.Row{"samples", report.Samples, "exempted", len(report.Learned)})
	t.Render()
}
