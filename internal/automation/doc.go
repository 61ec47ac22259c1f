// Package automation reacts to attribute changes.
//
// A Trigger subscribes to one device attribute and evaluates a Predicate
// on every notified value. When the result goes from false to true it
// schedules its Routine on the Engine; staying true does nothing until a
// false value re-arms it.
//
// The Engine keeps the scheduled routines on a pending list and runs
// them when a caller drains it, so a routine's own writes never re-enter
// the attribute that fired it. Cascades are bounded by a maximum depth.
//
// Rules are usually declared in the YAML site file:
//
//	rules:
//	  - name: too-hot
//	    when:
//	      device: {id: "62:01:94:31:6A:EA", class: TempSensor}
//	      attribute: temperature
//	      predicate: gt
//	      value: 30
//	    do:
//	      - set: {device: {class: HueLight, name: Living Room 2}, attribute: brightness, value: 254}
package automation
