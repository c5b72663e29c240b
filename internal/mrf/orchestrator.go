package mrf

import "context"

// ProcessFile drives one file through the full pipeline per SPEC_FULL.md
// §4.7: open input, fold the plan header, resolve references (possibly
// re-opening for a post-in_network reference table), stream in-network
// items into the seven CSV tables, and write the File/Plan/Plan↔File rows
// last — so an aborted run never leaves a Plan row pointing at a partial
// item set (SPEC_FULL.md §3, §7).
func ProcessFile(ctx context.Context, cfg *Config) error {
	input, err := OpenInput(ctx, cfg)
	if err != nil {
		return err
	}

	p := NewParser(input.Reader)
	plan, _, err := buildPlanHeader(p)
	if err != nil {
		input.Close()
		return err
	}

	refMap, structuralCase, err := BuildReferenceMap(ctx, cfg, p)
	if err != nil {
		input.Close()
		return err
	}

	if structuralCase == 1 {
		if err := fastForwardToInNetwork(p); err != nil {
			input.Close()
			return err
		}
	} else {
		input.Close()
		input, err = OpenInput(ctx, cfg)
		if err != nil {
			return err
		}
		p = NewParser(input.Reader)
		if err := fastForwardToInNetwork(p); err != nil {
			input.Close()
			return err
		}
	}
	defer input.Close()

	writer, err := NewWriter(cfg.OutDir)
	if err != nil {
		return err
	}
	defer writer.Close()

	fileRow, err := BuildFileRow(cfg.file())
	if err != nil {
		return err
	}

	err = StreamInNetworkItems(p, cfg, refMap, func(item InNetworkItem) error {
		codeRow, prices, groups, links, err := MaterializeRows(item, fileRow.FilenameHash)
		if err != nil {
			return err
		}
		if err := writer.AppendCode(codeRow); err != nil {
			return err
		}
		if err := writer.AppendPrices(prices); err != nil {
			return err
		}
		if err := writer.AppendGroups(groups); err != nil {
			return err
		}
		if err := writer.AppendPriceGroups(links); err != nil {
			return err
		}
		cfg.debugf("wrote %s %s", codeRow.BillingCodeType, codeRow.BillingCode)
		return nil
	})
	if err != nil {
		return err
	}

	planRow, err := BuildPlanRow(plan)
	if err != nil {
		return err
	}
	if err := writer.AppendFile(fileRow); err != nil {
		return err
	}
	if err := writer.AppendPlan(planRow); err != nil {
		return err
	}
	if err := writer.AppendPlanFile(BuildPlanFileRow(planRow.PlanHash, fileRow.FilenameHash)); err != nil {
		return err
	}
	return nil
}

// buildPlanHeader folds top-level scalar keys into a Plan, stopping the
// instant a top-level map_key event names provider_references or
// in_network — the parser is left positioned exactly before that key's
// value, which is what BuildReferenceMap expects.
func buildPlanHeader(p *Parser) (Plan, string, error) {
	start, err := p.Next()
	if err != nil {
		return Plan{}, "", newError(InvalidMRF, "empty input")
	}
	if start.Type != StartMap {
		return Plan{}, "", newError(InvalidMRF, "top-level value is not an object")
	}

	var plan Plan
	var pendingKey string
	for {
		ev, err := p.Next()
		if err != nil {
			if err == ErrStreamExhausted {
				return Plan{}, "", newError(InvalidMRF, "stream ended before provider_references/in_network")
			}
			return Plan{}, "", err
		}
		if ev.Type == MapKey {
			key, _ := ev.Value.(string)
			if ev.Prefix == "" && (key == "provider_references" || key == "in_network") {
				return plan, key, nil
			}
			pendingKey = key
			continue
		}
		if ev.Prefix != pendingKey {
			continue // nested value belonging to some other top-level field's container
		}
		if s, ok := ev.Value.(string); ok {
			assignPlanField(&plan, pendingKey, s)
		}
	}
}

func assignPlanField(plan *Plan, key, value string) {
	switch key {
	case "reporting_entity_name":
		plan.ReportingEntityName = value
	case "reporting_entity_type":
		plan.ReportingEntityType = value
	case "plan_name":
		plan.PlanName = value
	case "plan_id":
		plan.PlanID = value
	case "plan_id_type":
		plan.PlanIDType = value
	case "plan_market_type":
		plan.PlanMarketType = value
	case "last_updated_on":
		plan.LastUpdatedOn = value
	case "version":
		plan.Version = value
	}
}

func fastForwardToInNetwork(p *Parser) error {
	if _, err := Navigate(p, Pattern{Prefix: prefixPattern(""), Value: "in_network"}); err != nil {
		return newError(InvalidMRF, "in_network key never found: %v", err)
	}
	start, err := p.Next()
	if err != nil {
		return newError(InvalidMRF, "in_network value missing: %v", err)
	}
	if start.Type != StartArray {
		return newError(InvalidMRF, "in_network is not an array")
	}
	return nil
}
